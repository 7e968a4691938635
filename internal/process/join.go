package process

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

// JoinResult is the output of the cross-repository pass.
type JoinResult struct {
	Relationships []*kb.Relationship
	Principles    []*kb.Principle
	Patterns      []*kb.Pattern
}

// Join runs the cross-repository pass over the committed per-repository
// results. It must run only after every repository in the batch has
// finished its first pass: equivalence and promotion need the full
// concept population.
func (p *Processor) Join(repos []*RepoResult) *JoinResult {
	res := &JoinResult{}

	clusters := nameClusters(repos)
	res.Relationships = equivalenceEdges(clusters)
	res.Principles = p.promotePrinciples(clusters, repos)
	res.Patterns = p.promotePatterns(repos)

	p.logger.Info("join pass complete",
		"equivalences", len(res.Relationships),
		"principles", len(res.Principles),
		"patterns", len(res.Patterns))
	return res
}

// nameClusters groups all concepts by normalized name, keyed stably.
func nameClusters(repos []*RepoResult) map[string][]*kb.Concept {
	clusters := make(map[string][]*kb.Concept)
	for _, r := range repos {
		for _, c := range r.Concepts {
			key := kb.NormalizeName(c.Name)
			clusters[key] = append(clusters[key], c)
		}
	}
	for _, cs := range clusters {
		sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
	}
	return clusters
}

// equivalenceEdges links every cross-repository pair within a name
// cluster with weight 1.0. Exact normalized-name match is the only
// equivalence signal; fuzzy merging is deliberately not performed.
func equivalenceEdges(clusters map[string][]*kb.Concept) []*kb.Relationship {
	var edges []*kb.Relationship
	for _, cs := range clusters {
		for i := 0; i < len(cs); i++ {
			for j := i + 1; j < len(cs); j++ {
				a, b := cs[i], cs[j]
				if a.SourceRepo == b.SourceRepo {
					continue
				}
				from, to := kb.CanonicalEndpoints(kb.RelationEquivalentTo, a.ID, b.ID)
				edges = append(edges, &kb.Relationship{
					ID:            kb.RelationshipID(kb.RelationEquivalentTo, from, to),
					FromConceptID: from,
					ToConceptID:   to,
					Kind:          kb.RelationEquivalentTo,
					Weight:        1.0,
					Evidence:      []string{a.SourcePath, b.SourcePath},
				})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges
}

// promotePrinciples promotes two kinds of cross-repository recurrence:
// a concept name appearing in >= 2 distinct repositories, and a
// recurring description fragment spanning >= 2 distinct repositories.
// Dedupe is by normalized statement, so re-promotion is a no-op.
func (p *Processor) promotePrinciples(clusters map[string][]*kb.Concept, repos []*RepoResult) []*kb.Principle {
	byID := make(map[string]*kb.Principle)

	for name, cs := range clusters {
		repoSet := distinctRepos(cs)
		if len(repoSet) < 2 {
			continue
		}
		statement := fmt.Sprintf("%s is a shared concept across %d repositories", name, len(repoSet))
		addPrinciple(byID, statement, cs, len(repoSet))
	}

	// Recurring description fragments: the leading sentence of a
	// description appearing under concepts from >= 2 repositories.
	fragments := make(map[string][]*kb.Concept)
	for _, r := range repos {
		for _, c := range r.Concepts {
			frag := leadingSentence(c.Description)
			if frag == "" {
				continue
			}
			fragments[kb.NormalizeName(frag)] = append(fragments[kb.NormalizeName(frag)], c)
		}
	}
	for frag, cs := range fragments {
		repoSet := distinctRepos(cs)
		if len(repoSet) < 2 {
			continue
		}
		addPrinciple(byID, frag, cs, len(repoSet))
	}

	out := make([]*kb.Principle, 0, len(byID))
	for _, pr := range byID {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func addPrinciple(byID map[string]*kb.Principle, statement string, cs []*kb.Concept, repoCount int) {
	id := kb.PrincipleID(statement)
	if _, dup := byID[id]; dup {
		return
	}
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	byID[id] = &kb.Principle{
		ID:                 id,
		Statement:          statement,
		SupportingConcepts: ids,
		RepoCount:          repoCount,
	}
}

// promotePatterns looks for the references/co_occurs_with triangle:
// A references B while both co-occur with a common third concept C.
// The shape is promoted when it appears in >= PatternMinRepos distinct
// repositories.
func (p *Processor) promotePatterns(repos []*RepoResult) []*kb.Pattern {
	type shape struct {
		repos    map[string]bool
		concepts map[string]bool
	}
	s := shape{repos: map[string]bool{}, concepts: map[string]bool{}}

	for _, r := range repos {
		refs := make(map[[2]string]bool)
		co := make(map[string]map[string]bool)
		for _, e := range r.Relationships {
			switch e.Kind {
			case kb.RelationReferences:
				refs[[2]string{e.FromConceptID, e.ToConceptID}] = true
			case kb.RelationCoOccursWith:
				if co[e.FromConceptID] == nil {
					co[e.FromConceptID] = map[string]bool{}
				}
				if co[e.ToConceptID] == nil {
					co[e.ToConceptID] = map[string]bool{}
				}
				co[e.FromConceptID][e.ToConceptID] = true
				co[e.ToConceptID][e.FromConceptID] = true
			}
		}

		for pair := range refs {
			a, b := pair[0], pair[1]
			for c := range co[a] {
				if c != b && co[b][c] {
					s.repos[r.Repo] = true
					s.concepts[a] = true
					s.concepts[b] = true
					s.concepts[c] = true
				}
			}
		}
	}

	if len(s.repos) < p.opts.PatternMinRepos {
		return nil
	}

	statement := "referencing concepts co-occur with a shared third concept"
	ids := make([]string, 0, len(s.concepts))
	for id := range s.concepts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return []*kb.Pattern{{
		ID:                 kb.PatternID(statement),
		Statement:          statement,
		SupportingConcepts: ids,
		RepoCount:          len(s.repos),
	}}
}

func distinctRepos(cs []*kb.Concept) map[string]bool {
	set := make(map[string]bool)
	for _, c := range cs {
		set[c.SourceRepo] = true
	}
	return set
}

// leadingSentence takes the first sentence of a description when it is
// substantial enough to act as a candidate statement.
func leadingSentence(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	if i := strings.IndexAny(desc, ".!?"); i > 0 {
		desc = desc[:i]
	}
	if len(strings.Fields(desc)) < 3 {
		return ""
	}
	return strings.TrimSpace(desc)
}
