// Package kb defines the knowledge base data model: raw extraction
// records, concepts, relationships, principles, patterns, and the
// per-repository provenance bookkeeping used for reconciliation.
package kb

import (
	"time"
)

// ContentType classifies the source material a record was extracted from.
type ContentType string

const (
	ContentTypeDocumentation ContentType = "documentation"
	ContentTypeSpecification ContentType = "specification"
	ContentTypeConfiguration ContentType = "configuration"
	ContentTypeCode          ContentType = "code"
	ContentTypeTest          ContentType = "test"
	ContentTypeOther         ContentType = "other"
)

// ConceptType classifies a derived concept.
type ConceptType string

const (
	ConceptTypeSpec           ConceptType = "spec"
	ConceptTypeImplementation ConceptType = "implementation"
	ConceptTypePattern        ConceptType = "pattern"
	ConceptTypeTool           ConceptType = "tool"
	ConceptTypeOther          ConceptType = "other"
)

// RelationKind is the type of an edge between two concepts.
type RelationKind string

const (
	RelationReferences   RelationKind = "references"
	RelationImplements   RelationKind = "implements"
	RelationEquivalentTo RelationKind = "equivalent_to"
	RelationDependsOn    RelationKind = "depends_on"
	RelationCoOccursWith RelationKind = "co_occurs_with"
)

// Undirected reports whether edges of this kind have no direction.
// Undirected edges are stored once with canonically ordered endpoints.
func (k RelationKind) Undirected() bool {
	return k == RelationEquivalentTo || k == RelationCoOccursWith
}

// RawRecord is one extraction from one source file. Immutable once
// written; keyed by (SourceRepo, Revision, Path).
type RawRecord struct {
	SourceRepo  string      `json:"source_repo"`
	Revision    string      `json:"revision"`
	Path        string      `json:"path"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	RawText     string      `json:"raw_text"`
	ContentHash string      `json:"content_hash"`
	Truncated   bool        `json:"truncated,omitempty"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// Key returns the natural key of the record.
func (r *RawRecord) Key() string {
	return r.SourceRepo + "\x00" + r.Revision + "\x00" + r.Path
}

// Concept is a named, described unit of extracted knowledge
// attributable to one source file.
type Concept struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	SourceRepo  string      `json:"source_repo"`
	SourcePath  string      `json:"source_path"`
	Type        ConceptType `json:"type"`
	Tags        []string    `json:"tags,omitempty"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// Relationship is a typed, weighted edge between two concepts.
// Weight is in [0,1]. Evidence lists the source paths the edge was
// inferred from.
type Relationship struct {
	ID            string       `json:"id"`
	FromConceptID string       `json:"from_concept_id"`
	ToConceptID   string       `json:"to_concept_id"`
	Kind          RelationKind `json:"kind"`
	Weight        float64      `json:"weight"`
	Evidence      []string     `json:"evidence,omitempty"`
}

// Principle is a statement corroborated by concepts from at least two
// distinct repositories. RepoCount < 2 is never a valid Principle.
type Principle struct {
	ID                 string   `json:"id"`
	Statement          string   `json:"statement"`
	SupportingConcepts []string `json:"supporting_concepts"`
	RepoCount          int      `json:"repo_count"`
}

// Pattern is a recurring relationship shape observed across multiple
// repositories.
type Pattern struct {
	ID                 string   `json:"id"`
	Statement          string   `json:"statement"`
	SupportingConcepts []string `json:"supporting_concepts"`
	RepoCount          int      `json:"repo_count"`
}

// ProvenanceStatus describes the reconciliation state of a repository.
type ProvenanceStatus string

const (
	ProvenanceOK      ProvenanceStatus = "ok"
	ProvenancePartial ProvenanceStatus = "partial"
	ProvenanceStale   ProvenanceStatus = "stale"
	ProvenanceMissing ProvenanceStatus = "missing"
)

// Provenance is the per-repository bookkeeping record used by the
// verifier to reconcile the store against its sources.
type Provenance struct {
	SourceRepo        string           `json:"source_repo"`
	Revision          string           `json:"revision"`
	FileCountSeen     int              `json:"file_count_seen"`
	RecordCountStored int              `json:"record_count_stored"`
	SkipCount         int              `json:"skip_count"`
	LastVerifiedAt    time.Time        `json:"last_verified_at"`
	Status            ProvenanceStatus `json:"status"`
}

// CoverageReport compares one repository's current source state against
// the store. Status is ok only when coverage is 100% and revisions match.
type CoverageReport struct {
	Repo          string           `json:"repo"`
	FilesInSource int              `json:"files_in_source"`
	FilesInStore  int              `json:"files_in_store"`
	CoveragePct   float64          `json:"coverage_pct"`
	RevisionMatch bool             `json:"revision_match"`
	Status        ProvenanceStatus `json:"status"`
}

// EntitySet is the unit the processor hands to the store: everything
// derived for one repository at one revision, plus the cross-repository
// entities produced by the join pass.
type EntitySet struct {
	Concepts      []*Concept      `json:"concepts"`
	Relationships []*Relationship `json:"relationships"`
	Principles    []*Principle    `json:"principles,omitempty"`
	Patterns      []*Pattern      `json:"patterns,omitempty"`
}
