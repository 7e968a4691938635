package store

import (
	"sort"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

// Snapshot is an immutable read view over all derived entities.
// Writers build a fresh Snapshot and swap it in; a Snapshot handed to
// a reader never changes underneath it.
type Snapshot struct {
	concepts      []*kb.Concept
	relationships []*kb.Relationship
	principles    []*kb.Principle
	patterns      []*kb.Pattern

	conceptByID      map[string]*kb.Concept
	relationshipByID map[string]*kb.Relationship
	relationshipsBy  map[string][]*kb.Relationship
	principleByID    map[string]*kb.Principle
	patternByID      map[string]*kb.Pattern
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		conceptByID:      make(map[string]*kb.Concept),
		relationshipByID: make(map[string]*kb.Relationship),
		relationshipsBy:  make(map[string][]*kb.Relationship),
		principleByID:    make(map[string]*kb.Principle),
		patternByID:      make(map[string]*kb.Pattern),
	}
}

func (s *Snapshot) addConcepts(cs []*kb.Concept) {
	for _, c := range cs {
		if _, dup := s.conceptByID[c.ID]; dup {
			continue
		}
		s.conceptByID[c.ID] = c
		s.concepts = append(s.concepts, c)
	}
}

func (s *Snapshot) addRelationships(rels []*kb.Relationship) {
	for _, r := range rels {
		if _, dup := s.relationshipByID[r.ID]; dup {
			continue
		}
		s.relationshipByID[r.ID] = r
		s.relationships = append(s.relationships, r)
		s.relationshipsBy[r.FromConceptID] = append(s.relationshipsBy[r.FromConceptID], r)
		if r.ToConceptID != r.FromConceptID {
			s.relationshipsBy[r.ToConceptID] = append(s.relationshipsBy[r.ToConceptID], r)
		}
	}
}

func (s *Snapshot) addPrinciples(ps []*kb.Principle) {
	for _, p := range ps {
		if _, dup := s.principleByID[p.ID]; dup {
			continue
		}
		s.principleByID[p.ID] = p
		s.principles = append(s.principles, p)
	}
}

func (s *Snapshot) addPatterns(ps []*kb.Pattern) {
	for _, p := range ps {
		if _, dup := s.patternByID[p.ID]; dup {
			continue
		}
		s.patternByID[p.ID] = p
		s.patterns = append(s.patterns, p)
	}
}

// finalize sorts everything by id so iteration order is deterministic.
func (s *Snapshot) finalize() {
	sort.Slice(s.concepts, func(i, j int) bool { return s.concepts[i].ID < s.concepts[j].ID })
	sort.Slice(s.relationships, func(i, j int) bool { return s.relationships[i].ID < s.relationships[j].ID })
	sort.Slice(s.principles, func(i, j int) bool { return s.principles[i].ID < s.principles[j].ID })
	sort.Slice(s.patterns, func(i, j int) bool { return s.patterns[i].ID < s.patterns[j].ID })
}

// ConceptByID returns a concept or nil.
func (s *Snapshot) ConceptByID(id string) *kb.Concept {
	return s.conceptByID[id]
}

// RelationshipByID returns an edge or nil.
func (s *Snapshot) RelationshipByID(id string) *kb.Relationship {
	return s.relationshipByID[id]
}

// PrincipleByID returns a principle or nil.
func (s *Snapshot) PrincipleByID(id string) *kb.Principle {
	return s.principleByID[id]
}

// PatternByID returns a pattern or nil.
func (s *Snapshot) PatternByID(id string) *kb.Pattern {
	return s.patternByID[id]
}

// Concepts returns all concepts ordered by id.
func (s *Snapshot) Concepts() []*kb.Concept { return s.concepts }

// Relationships returns all edges ordered by id. Undirected edges
// appear exactly once with canonical endpoint order.
func (s *Snapshot) Relationships() []*kb.Relationship { return s.relationships }

// Principles returns all principles ordered by id.
func (s *Snapshot) Principles() []*kb.Principle { return s.principles }

// Patterns returns all patterns ordered by id.
func (s *Snapshot) Patterns() []*kb.Pattern { return s.patterns }

// RelationshipsFor returns every edge touching the concept, from either
// endpoint. An undirected edge is returned once regardless of which
// endpoint was asked for.
func (s *Snapshot) RelationshipsFor(conceptID string) []*kb.Relationship {
	return s.relationshipsBy[conceptID]
}

// ConceptFilter narrows ListConcepts. Zero values match everything.
type ConceptFilter struct {
	Repo string
	Type kb.ConceptType
	Tag  string
}

// ListConcepts returns concepts matching the filter, ordered by id.
func (s *Snapshot) ListConcepts(f ConceptFilter) []*kb.Concept {
	var out []*kb.Concept
	for _, c := range s.concepts {
		if f.Repo != "" && c.SourceRepo != f.Repo {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.Tag != "" && !hasTag(c.Tags, f.Tag) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Stats summarizes the snapshot for dashboards.
type Stats struct {
	Concepts      int            `json:"concepts"`
	Relationships int            `json:"relationships"`
	Principles    int            `json:"principles"`
	Patterns      int            `json:"patterns"`
	ByRepo        map[string]int `json:"concepts_by_repo"`
	ByType        map[string]int `json:"concepts_by_type"`
}

// Stats computes entity counts by repository and type.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		Concepts:      len(s.concepts),
		Relationships: len(s.relationships),
		Principles:    len(s.principles),
		Patterns:      len(s.patterns),
		ByRepo:        make(map[string]int),
		ByType:        make(map[string]int),
	}
	for _, c := range s.concepts {
		st.ByRepo[c.SourceRepo]++
		st.ByType[string(c.Type)]++
	}
	return st
}
