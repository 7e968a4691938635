package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/embed"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/store"
)

func concept(repo, name, description string, tags ...string) *kb.Concept {
	return &kb.Concept{
		ID:          kb.ConceptID(name, repo),
		Name:        name,
		Description: description,
		SourceRepo:  repo,
		SourcePath:  "docs/x.md",
		Type:        kb.ConceptTypeOther,
		Tags:        tags,
		ExtractedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// setup builds a store snapshot, rebuilt indexes, and an engine.
func setup(t *testing.T, embedder embed.Embedder, concepts ...*kb.Concept) (*Engine, *store.Snapshot) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	byRepo := make(map[string][]*kb.Concept)
	for _, c := range concepts {
		byRepo[c.SourceRepo] = append(byRepo[c.SourceRepo], c)
	}
	for repo, cs := range byRepo {
		require.NoError(t, s.ReplaceRepository(context.Background(), &store.RepoBatch{
			Repo: repo, Revision: "rev-1",
			Entities: &kb.EntitySet{Concepts: cs},
		}))
	}

	kw, err := index.NewKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })

	var vec *index.VectorIndex
	if embedder != nil {
		vec = index.NewVectorIndex(embedder.Dimensions())
	}
	ix := index.New(kw, vec, embedder, nil)
	snap := s.Snapshot()
	_, err = ix.Rebuild(context.Background(), snap)
	require.NoError(t, err)

	return NewEngine(ix, embedder, Options{}, nil), snap
}

func fiveConcepts() []*kb.Concept {
	return []*kb.Concept{
		concept("alpha", "Execution Model", "runs untrusted code in a sandbox", "agent"),
		concept("alpha", "Registry", "lists available tools", "registry"),
		concept("alpha", "Transport", "moves bytes between endpoints", "transport"),
		concept("beta", "Discovery", "agents find tools dynamically", "discovery"),
		concept("beta", "Manifest", "declares tool endpoints", "manifest"),
	}
}

func TestSearch_KeywordMode(t *testing.T) {
	e, snap := setup(t, embed.NewStaticEmbedder(64), fiveConcepts()...)

	results, meta, err := e.Search(context.Background(), snap, "sandbox", ModeKeyword, 10)
	require.NoError(t, err)
	assert.False(t, meta.Degraded)
	require.NotEmpty(t, results)
	assert.Equal(t, "Execution Model", results[0].Concept.Name,
		"the only concept containing the exact token ranks first")
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, len(results), 10)
}

func TestSearch_HybridDedupesAndRanks(t *testing.T) {
	e, snap := setup(t, embed.NewStaticEmbedder(64), fiveConcepts()...)

	results, meta, err := e.Search(context.Background(), snap, "tools registry", ModeHybrid, 10)
	require.NoError(t, err)
	assert.False(t, meta.Degraded)
	require.NotEmpty(t, results)

	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Concept.ID], "no duplicate concept ids")
		seen[r.Concept.ID] = true
	}
	assert.InDelta(t, 1.0, results[0].Score, 1e-9, "scores normalized to the best hit")
}

func TestSearch_SemanticDegradesWhenEmbedderUnavailable(t *testing.T) {
	e, snap := setup(t, nil, fiveConcepts()...)

	results, meta, err := e.Search(context.Background(), snap, "sandbox", ModeSemantic, 10)
	require.NoError(t, err, "unavailable embedder is a degradation, not a failure")
	assert.True(t, meta.Degraded)
	assert.NotEmpty(t, meta.Reason)
	require.NotEmpty(t, results, "keyword fallback still serves the query")
	assert.Equal(t, "Execution Model", results[0].Concept.Name)
}

func TestSearch_HybridDegradesToKeywordOnly(t *testing.T) {
	e, snap := setup(t, nil, fiveConcepts()...)

	results, meta, err := e.Search(context.Background(), snap, "endpoints", ModeHybrid, 10)
	require.NoError(t, err)
	assert.True(t, meta.Degraded)
	assert.NotEmpty(t, results)
}

func TestSearch_LimitRespected(t *testing.T) {
	e, snap := setup(t, embed.NewStaticEmbedder(64), fiveConcepts()...)

	results, _, err := e.Search(context.Background(), snap, "tools", ModeHybrid, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("keyword")
	require.NoError(t, err)
	assert.Equal(t, ModeKeyword, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	_, err = ParseMode("psychic")
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeInvalidMode, kberrors.GetCode(err))
}

func TestFuseRankings(t *testing.T) {
	keyword := []rankedID{{ID: "a", Score: 3}, {ID: "b", Score: 2}, {ID: "c", Score: 1}}
	semantic := []rankedID{{ID: "b", Score: 0.9}, {ID: "d", Score: 0.8}}

	fusedList := fuseRankings(keyword, semantic, fusionConfig{K: 60, KeywordWeight: 0.5, SemanticWeight: 0.5})
	require.Len(t, fusedList, 4)

	assert.Equal(t, "b", fusedList[0].ID, "present near the top of both lists wins")
	assert.True(t, fusedList[0].InBoth)

	for i := 1; i < len(fusedList); i++ {
		assert.GreaterOrEqual(t, fusedList[i-1].RRFScore, fusedList[i].RRFScore)
	}
}

func TestFuseRankings_EmptyLegs(t *testing.T) {
	assert.Empty(t, fuseRankings(nil, nil, fusionConfig{}))

	onlyKW := fuseRankings([]rankedID{{ID: "a", Score: 1}}, nil, fusionConfig{})
	require.Len(t, onlyKW, 1)
	assert.Equal(t, "a", onlyKW[0].ID)
}
