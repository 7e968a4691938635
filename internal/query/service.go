// Package query exposes the read-only retrieval surface: entity lookup
// by id, filtered listing, ranked search, and statistics. The service
// holds no mutable state of its own; every request runs against the
// store's current immutable snapshot.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/telemetry"
)

// EntityKind tags a GetByID result.
type EntityKind string

const (
	KindConcept      EntityKind = "concept"
	KindRelationship EntityKind = "relationship"
	KindPrinciple    EntityKind = "principle"
	KindPattern      EntityKind = "pattern"
)

// Entity is the typed result of GetByID. Exactly one payload field is
// set, named by Kind.
type Entity struct {
	Kind         EntityKind       `json:"kind"`
	Concept      *kb.Concept      `json:"concept,omitempty"`
	Relationship *kb.Relationship `json:"relationship,omitempty"`
	Principle    *kb.Principle    `json:"principle,omitempty"`
	Pattern      *kb.Pattern      `json:"pattern,omitempty"`
	// Related lists the edges touching a concept.
	Related []*kb.Relationship `json:"related,omitempty"`
}

// Limits bounds search result sizes.
type Limits struct {
	// Default applies when the caller gives no limit.
	Default int
	// Hard is the cap; requests beyond it are rejected, not truncated.
	Hard int
}

// Service is the read-only query surface.
type Service struct {
	store   *store.Store
	engine  *search.Engine
	limits  Limits
	cache   *lru.Cache[string, *Entity]
	metrics *telemetry.QueryMetrics // optional
	logger  *slog.Logger
}

// SetMetrics attaches a telemetry collector. Searches are recorded
// from then on.
func (s *Service) SetMetrics(m *telemetry.QueryMetrics) {
	s.metrics = m
}

// NewService creates a query service.
func NewService(st *store.Store, engine *search.Engine, limits Limits, logger *slog.Logger) (*Service, error) {
	if limits.Default <= 0 {
		limits.Default = 20
	}
	if limits.Hard <= 0 {
		limits.Hard = 200
	}
	if limits.Default > limits.Hard {
		return nil, fmt.Errorf("default limit %d exceeds hard cap %d", limits.Default, limits.Hard)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *Entity](1024)
	if err != nil {
		return nil, err
	}
	return &Service{store: st, engine: engine, limits: limits, cache: cache, logger: logger}, nil
}

// GetByID returns any entity by id, with a concept's touching edges
// attached. Unknown ids are a typed not-found rejection.
func (s *Service) GetByID(ctx context.Context, id string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e, ok := s.cache.Get(id); ok {
		return e, nil
	}

	snap := s.store.Snapshot()
	var e *Entity
	switch {
	case snap.ConceptByID(id) != nil:
		e = &Entity{
			Kind:    KindConcept,
			Concept: snap.ConceptByID(id),
			Related: snap.RelationshipsFor(id),
		}
	case snap.RelationshipByID(id) != nil:
		e = &Entity{Kind: KindRelationship, Relationship: snap.RelationshipByID(id)}
	case snap.PrincipleByID(id) != nil:
		e = &Entity{Kind: KindPrinciple, Principle: snap.PrincipleByID(id)}
	case snap.PatternByID(id) != nil:
		e = &Entity{Kind: KindPattern, Pattern: snap.PatternByID(id)}
	default:
		return nil, kberrors.New(kberrors.ErrCodeEntityNotFound,
			fmt.Sprintf("no entity with id %q", id), nil)
	}

	s.cache.Add(id, e)
	return e, nil
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Repo string
	Type kb.ConceptType
	Tag  string
}

// List returns concepts matching the filter, ordered by id.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*kb.Concept, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.Snapshot().ListConcepts(store.ConceptFilter{
		Repo: f.Repo,
		Type: f.Type,
		Tag:  f.Tag,
	}), nil
}

// Search ranks concepts for the query. A zero limit takes the default;
// a limit beyond the hard cap is rejected outright rather than
// silently truncated.
func (s *Service) Search(ctx context.Context, queryStr string, mode search.Mode, limit int) ([]search.Result, search.Meta, error) {
	if limit == 0 {
		limit = s.limits.Default
	}
	if limit < 0 {
		return nil, search.Meta{}, kberrors.New(kberrors.ErrCodeInvalidQuery,
			fmt.Sprintf("limit must be positive (got %d)", limit), nil)
	}
	if limit > s.limits.Hard {
		return nil, search.Meta{}, kberrors.QueryLimitExceeded(limit, s.limits.Hard)
	}

	start := time.Now()
	results, meta, err := s.engine.Search(ctx, s.store.Snapshot(), queryStr, mode, limit)
	if err == nil && s.metrics != nil {
		s.metrics.Record(telemetry.QueryEvent{
			Query:       queryStr,
			Mode:        string(meta.Mode),
			ResultCount: len(results),
			Degraded:    meta.Degraded,
			Latency:     time.Since(start),
		})
	}
	return results, meta, err
}

// StatsReport is the stats() payload.
type StatsReport struct {
	store.Stats
	Repositories []*kb.Provenance `json:"repositories"`
}

// Stats summarizes entity counts and per-repository provenance.
func (s *Service) Stats(ctx context.Context) (*StatsReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &StatsReport{Stats: s.store.Snapshot().Stats()}
	repos := make([]string, 0, len(report.ByRepo))
	for repo := range report.ByRepo {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	for _, repo := range repos {
		p, err := s.store.Provenance(ctx, repo)
		if err != nil {
			return nil, err
		}
		if p != nil {
			report.Repositories = append(report.Repositories, p)
		}
	}
	return report, nil
}
