package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Aman-CERP/knowbase/internal/embed"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Mode selects the ranking strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", kberrors.New(kberrors.ErrCodeInvalidMode,
			fmt.Sprintf("invalid search mode %q (keyword, semantic, or hybrid)", s), nil)
	}
}

// Result is one ranked concept.
type Result struct {
	Concept *kb.Concept `json:"concept"`
	Score   float64     `json:"score"`
	// InBoth marks results both ranking legs agreed on.
	InBoth bool `json:"in_both,omitempty"`
}

// Meta describes how a search was actually served.
type Meta struct {
	Mode Mode `json:"mode"`
	// Degraded is true when a semantic or hybrid request was served
	// keyword-only because the embedder was unavailable.
	Degraded bool   `json:"degraded,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Options tunes the engine.
type Options struct {
	KeywordWeight  float64
	SemanticWeight float64
	RRFConstant    int
}

// Engine ranks concepts from the indexes against a store snapshot.
type Engine struct {
	indexer  *index.Indexer
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewEngine creates a search engine. A nil embedder serves semantic
// and hybrid requests keyword-only, flagged as degraded.
func NewEngine(indexer *index.Indexer, embedder embed.Embedder, opts Options, logger *slog.Logger) *Engine {
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = 60
	}
	if opts.KeywordWeight == 0 && opts.SemanticWeight == 0 {
		opts.KeywordWeight, opts.SemanticWeight = 0.5, 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{indexer: indexer, embedder: embedder, opts: opts, logger: logger}
}

// Search ranks up to limit concepts for the query. Results are
// deduplicated by concept id, keeping the higher-ranked occurrence.
func (e *Engine) Search(ctx context.Context, snap *store.Snapshot, query string, mode Mode, limit int) ([]Result, Meta, error) {
	meta := Meta{Mode: mode}
	if limit <= 0 {
		limit = 20
	}

	// Overfetch each leg so fusion has enough candidates.
	fetch := limit * 3

	var keyword, semantic []rankedID
	var err error

	if mode == ModeKeyword || mode == ModeHybrid {
		keyword, err = e.keywordLeg(ctx, snap, query, fetch)
		if err != nil {
			return nil, meta, err
		}
	}

	if mode == ModeSemantic || mode == ModeHybrid {
		semantic, err = e.semanticLeg(ctx, query, fetch)
		if err != nil {
			// Semantic failure is a degradation, never a request failure.
			meta.Degraded = true
			meta.Reason = err.Error()
			if mode == ModeSemantic {
				keyword, err = e.keywordLeg(ctx, snap, query, fetch)
				if err != nil {
					return nil, meta, err
				}
			}
			e.logger.Warn("semantic search degraded to keyword-only",
				slog.String("reason", meta.Reason))
		}
	}

	ranked := fuseRankings(keyword, semantic, fusionConfig{
		K:              e.opts.RRFConstant,
		KeywordWeight:  e.opts.KeywordWeight,
		SemanticWeight: e.opts.SemanticWeight,
	})
	scores := normalizeScores(ranked)

	results := make([]Result, 0, limit)
	seen := make(map[string]bool, limit)
	for _, r := range ranked {
		if seen[r.ID] {
			continue
		}
		c := snap.ConceptByID(r.ID)
		if c == nil {
			// Index entry for a concept retired since the last rebuild.
			continue
		}
		seen[r.ID] = true
		results = append(results, Result{Concept: c, Score: scores[r.ID], InBoth: r.InBoth})
		if len(results) == limit {
			break
		}
	}
	return results, meta, nil
}

// keywordLeg runs BM25 and breaks score ties on most-recent
// extraction.
func (e *Engine) keywordLeg(ctx context.Context, snap *store.Snapshot, query string, limit int) ([]rankedID, error) {
	hits, err := e.indexer.Keyword().Search(ctx, query, limit)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIndexFailed, "keyword search failed", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		a, b := snap.ConceptByID(hits[i].ID), snap.ConceptByID(hits[j].ID)
		if a != nil && b != nil && !a.ExtractedAt.Equal(b.ExtractedAt) {
			return a.ExtractedAt.After(b.ExtractedAt)
		}
		return hits[i].ID < hits[j].ID
	})

	out := make([]rankedID, len(hits))
	for i, h := range hits {
		out[i] = rankedID{ID: h.ID, Score: h.Score}
	}
	return out, nil
}

// semanticLeg embeds the query and searches the vector index.
func (e *Engine) semanticLeg(ctx context.Context, query string, limit int) ([]rankedID, error) {
	if e.embedder == nil || e.indexer.Vector() == nil {
		return nil, embed.ErrUnavailable
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := e.indexer.Vector().Search(vec, limit)
	if err != nil {
		return nil, err
	}
	out := make([]rankedID, len(hits))
	for i, h := range hits {
		out[i] = rankedID{ID: h.ID, Score: h.Score}
	}
	return out, nil
}
