// Package process derives knowledge entities from raw extraction
// records: concepts with vocabulary tags, typed relationships, and the
// cross-repository principles and patterns built in a second pass after
// all per-repository batches have committed.
package process

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

// Options tunes entity derivation.
type Options struct {
	// Vocabulary is the domain keyword list for tag derivation.
	Vocabulary []string
	// MinSharedTags is the co-occurrence threshold.
	MinSharedTags int
	// PatternMinRepos is the repository spread required to promote a
	// relationship shape to a Pattern.
	PatternMinRepos int
}

// DefaultOptions mirror the config defaults.
func DefaultOptions() Options {
	return Options{MinSharedTags: 2, PatternMinRepos: 3}
}

// RecordError notes one record the processor could not handle. The
// batch always continues past it.
type RecordError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RepoResult is the per-repository output of the first pass.
type RepoResult struct {
	Repo          string
	Concepts      []*kb.Concept
	Relationships []*kb.Relationship
	Errors        []RecordError
}

// Processor derives entities from raw records.
type Processor struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Processor.
func New(opts Options, logger *slog.Logger) *Processor {
	if opts.MinSharedTags < 1 {
		opts.MinSharedTags = DefaultOptions().MinSharedTags
	}
	if opts.PatternMinRepos < 2 {
		opts.PatternMinRepos = DefaultOptions().PatternMinRepos
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{opts: opts, logger: logger}
}

// ProcessRepo runs the single-repository pass: concepts plus the edges
// inferable without seeing other repositories. Malformed records become
// RecordErrors, never aborts.
func (p *Processor) ProcessRepo(records []*kb.RawRecord) *RepoResult {
	res := &RepoResult{}
	if len(records) == 0 {
		return res
	}
	res.Repo = records[0].SourceRepo

	byConceptID := make(map[string]*kb.RawRecord)
	for _, rec := range records {
		if !utf8.ValidString(rec.RawText) {
			res.Errors = append(res.Errors, RecordError{Path: rec.Path, Reason: "invalid encoding"})
			continue
		}
		c := p.deriveConcept(rec)
		if c == nil {
			// Unusable title: data-quality filtering, not a failure.
			continue
		}
		if _, dup := byConceptID[c.ID]; dup {
			continue
		}
		byConceptID[c.ID] = rec
		res.Concepts = append(res.Concepts, c)
	}

	sort.Slice(res.Concepts, func(i, j int) bool { return res.Concepts[i].ID < res.Concepts[j].ID })

	res.Relationships = append(res.Relationships, p.coOccurrenceEdges(res.Concepts)...)
	res.Relationships = append(res.Relationships, p.referenceEdges(res.Concepts, byConceptID)...)

	p.logger.Info("processing complete",
		slog.String("repo", res.Repo),
		slog.Int("concepts", len(res.Concepts)),
		slog.Int("relationships", len(res.Relationships)),
		slog.Int("errors", len(res.Errors)))
	return res
}

// deriveConcept builds one candidate concept from a record. Records
// without a usable title yield nil.
func (p *Processor) deriveConcept(rec *kb.RawRecord) *kb.Concept {
	name := strings.TrimSpace(rec.Title)
	if name == "" || kb.NormalizeName(name) == "" {
		return nil
	}
	return &kb.Concept{
		ID:          kb.ConceptID(name, rec.SourceRepo),
		Name:        name,
		Description: rec.Summary,
		SourceRepo:  rec.SourceRepo,
		SourcePath:  rec.Path,
		Type:        conceptTypeFor(rec.ContentType),
		Tags:        DeriveTags(rec.Title+" "+rec.Summary+" "+rec.RawText, p.opts.Vocabulary),
		ExtractedAt: rec.ExtractedAt,
	}
}

// conceptTypeFor maps source material to concept type.
func conceptTypeFor(ct kb.ContentType) kb.ConceptType {
	switch ct {
	case kb.ContentTypeSpecification:
		return kb.ConceptTypeSpec
	case kb.ContentTypeCode, kb.ContentTypeTest:
		return kb.ConceptTypeImplementation
	case kb.ContentTypeConfiguration:
		return kb.ConceptTypeTool
	default:
		return kb.ConceptTypeOther
	}
}

// coOccurrenceEdges links same-repository concepts sharing enough tags.
// Weight is the Jaccard similarity of the tag sets.
func (p *Processor) coOccurrenceEdges(concepts []*kb.Concept) []*kb.Relationship {
	var edges []*kb.Relationship
	for i := 0; i < len(concepts); i++ {
		for j := i + 1; j < len(concepts); j++ {
			a, b := concepts[i], concepts[j]
			if sharedTags(a.Tags, b.Tags) < p.opts.MinSharedTags {
				continue
			}
			from, to := kb.CanonicalEndpoints(kb.RelationCoOccursWith, a.ID, b.ID)
			edges = append(edges, &kb.Relationship{
				ID:            kb.RelationshipID(kb.RelationCoOccursWith, from, to),
				FromConceptID: from,
				ToConceptID:   to,
				Kind:          kb.RelationCoOccursWith,
				Weight:        jaccard(a.Tags, b.Tags),
				Evidence:      []string{a.SourcePath, b.SourcePath},
			})
		}
	}
	return edges
}

// referenceEdges finds explicit textual cross-references: one record's
// raw text containing another concept's name yields a directed edge.
func (p *Processor) referenceEdges(concepts []*kb.Concept, records map[string]*kb.RawRecord) []*kb.Relationship {
	var edges []*kb.Relationship
	for _, from := range concepts {
		rec := records[from.ID]
		if rec == nil {
			continue
		}
		text := strings.ToLower(rec.RawText)
		for _, to := range concepts {
			if to.ID == from.ID {
				continue
			}
			name := kb.NormalizeName(to.Name)
			if name == "" || !strings.Contains(text, name) {
				continue
			}
			// Containment of the exact normalized name is the only
			// trigger; fuzzy mentions are not searched for.
			edges = append(edges, &kb.Relationship{
				ID:            kb.RelationshipID(kb.RelationReferences, from.ID, to.ID),
				FromConceptID: from.ID,
				ToConceptID:   to.ID,
				Kind:          kb.RelationReferences,
				Weight:        1.0,
				Evidence:      []string{rec.Path},
			})
		}
	}
	return edges
}
