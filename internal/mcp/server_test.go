package mcp

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/verify"
)

type fakeAdapter struct {
	repo     string
	revision string
	paths    []string
}

func (f *fakeAdapter) Repo() string                             { return f.repo }
func (f *fakeAdapter) Revision(context.Context) (string, error) { return f.revision, nil }
func (f *fakeAdapter) ListFiles(context.Context) ([]source.FileInfo, error) {
	out := make([]source.FileInfo, len(f.paths))
	for i, p := range f.paths {
		out[i] = source.FileInfo{Path: p}
	}
	return out, nil
}
func (f *fakeAdapter) Read(context.Context, string) ([]byte, error) {
	return nil, source.ErrNotFound
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	concepts := []*kb.Concept{
		{
			ID: kb.ConceptID("Tool Discovery", "alpha"), Name: "Tool Discovery",
			Description: "finding tools in a registry", SourceRepo: "alpha",
			Type: kb.ConceptTypeSpec, Tags: []string{"tool", "discovery"},
			ExtractedAt: time.Now().UTC(),
		},
		{
			ID: kb.ConceptID("Sandbox Runner", "alpha"), Name: "Sandbox Runner",
			Description: "isolated execution", SourceRepo: "alpha",
			Type: kb.ConceptTypeImplementation, Tags: []string{"sandbox"},
			ExtractedAt: time.Now().UTC(),
		},
	}
	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 2,
		Records: []*kb.RawRecord{{
			SourceRepo: "alpha", Revision: "rev-1", Path: "a.md",
			ContentType: kb.ContentTypeDocumentation, Title: "a", RawText: "x",
			ContentHash: kb.ContentHash([]byte("x")), ExtractedAt: time.Now().UTC(),
		}},
		Entities: &kb.EntitySet{Concepts: concepts},
	}))

	embedder := embed.NewStaticEmbedder(64)
	kw, err := index.NewKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	ix := index.New(kw, index.NewVectorIndex(64), embedder, nil)
	_, err = ix.Rebuild(ctx, s.Snapshot())
	require.NoError(t, err)

	engine := search.NewEngine(ix, embedder, search.Options{}, nil)
	svc, err := query.NewService(s, engine, query.Limits{}, nil)
	require.NoError(t, err)

	adapters := []source.Adapter{
		&fakeAdapter{repo: "alpha", revision: "rev-1", paths: []string{"a.md"}},
	}
	srv, err := NewServer(svc, verify.New(s, nil), adapters, embedder, nil)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSearchKnowledge(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "tool discovery"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	first := out.Results[0]
	assert.Equal(t, "Tool Discovery", first.Name)
	assert.Equal(t, "alpha", first.Repo)
	assert.InDelta(t, 1.0, first.Score, 1e-9)
	assert.Equal(t, "hybrid", out.Mode)
}

func TestSearchKnowledge_EmptyQueryRejected(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "   "})
	require.Error(t, err)
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestSearchKnowledge_InvalidMode(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "q", Mode: "fuzzy"})
	require.Error(t, err)
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestGetEntity(t *testing.T) {
	srv := newTestServer(t)
	id := kb.ConceptID("Tool Discovery", "alpha")

	_, out, err := srv.getEntityHandler(context.Background(), nil, GetEntityInput{ID: id})
	require.NoError(t, err)
	assert.Equal(t, query.KindConcept, out.Entity.Kind)
	assert.Equal(t, "Tool Discovery", out.Entity.Concept.Name)
}

func TestGetEntity_NotFound(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.getEntityHandler(context.Background(), nil, GetEntityInput{ID: "nope"})
	require.Error(t, err)
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeEntityNotFound, me.Code)
}

func TestListConcepts(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.listConceptsHandler(context.Background(), nil, ListConceptsInput{Tag: "sandbox"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Sandbox Runner", out.Concepts[0].Name)
}

func TestListConcepts_TypeFilterMatchesSchema(t *testing.T) {
	srv := newTestServer(t)

	// Every type the schema advertises must filter without surprises.
	field, ok := reflect.TypeOf(ListConceptsInput{}).FieldByName("Type")
	require.True(t, ok)
	schema := field.Tag.Get("jsonschema")
	for _, ct := range []kb.ConceptType{
		kb.ConceptTypeSpec, kb.ConceptTypeImplementation, kb.ConceptTypePattern,
		kb.ConceptTypeTool, kb.ConceptTypeOther,
	} {
		assert.Contains(t, schema, string(ct))
	}

	_, out, err := srv.listConceptsHandler(context.Background(), nil, ListConceptsInput{Type: "spec"})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "Tool Discovery", out.Concepts[0].Name)
}

func TestKBStats(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.statsHandler(context.Background(), nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Stats.Concepts)
	assert.Equal(t, "static", out.Embeddings.Provider)
	assert.Equal(t, "ready", out.Embeddings.Status)
}

func TestCoverageReport(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.coverageHandler(context.Background(), nil, CoverageInput{})
	require.NoError(t, err)
	require.Len(t, out.Reports, 1)
	assert.Equal(t, kb.ProvenanceOK, out.Reports[0].Status)
}

func TestCoverageReport_UnknownRepo(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.coverageHandler(context.Background(), nil, CoverageInput{Repo: "ghost"})
	require.Error(t, err)
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}
