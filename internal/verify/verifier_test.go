package verify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
)

type fakeAdapter struct {
	repo     string
	revision string
	files    []source.FileInfo
}

func (f *fakeAdapter) Repo() string                                  { return f.repo }
func (f *fakeAdapter) Revision(context.Context) (string, error)      { return f.revision, nil }
func (f *fakeAdapter) ListFiles(context.Context) ([]source.FileInfo, error) { return f.files, nil }
func (f *fakeAdapter) Read(context.Context, string) ([]byte, error)  { return nil, source.ErrNotFound }

func files(n int) []source.FileInfo {
	out := make([]source.FileInfo, n)
	for i := range out {
		out[i] = source.FileInfo{Path: filepath.Join("docs", string(rune('a'+i))+".md")}
	}
	return out
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(repo, revision, path string) *kb.RawRecord {
	return &kb.RawRecord{
		SourceRepo: repo, Revision: revision, Path: path,
		ContentType: kb.ContentTypeDocumentation,
		Title:       path, Summary: "s", RawText: "body",
		ContentHash: kb.ContentHash([]byte(path)),
		ExtractedAt: time.Now().UTC(),
	}
}

func TestVerifyRepo_OK(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 3,
		Records: []*kb.RawRecord{
			record("alpha", "rev-1", "a.md"),
			record("alpha", "rev-1", "b.md"),
		},
		Skips: []extract.Skip{{Path: "c.md", Reason: extract.SkipBinary}},
	}))

	v := New(s, nil)
	report, err := v.VerifyRepo(ctx, &fakeAdapter{repo: "alpha", revision: "rev-1", files: files(3)})
	require.NoError(t, err)

	assert.Equal(t, kb.ProvenanceOK, report.Status)
	assert.Equal(t, 100.0, report.CoveragePct, "recorded skips count as covered")
	assert.True(t, report.RevisionMatch)
	assert.Equal(t, 3, report.FilesInSource)
	assert.Equal(t, 2, report.FilesInStore)
}

func TestVerifyRepo_Partial(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 4,
		Records: []*kb.RawRecord{record("alpha", "rev-1", "a.md")},
	}))

	v := New(s, nil)
	report, err := v.VerifyRepo(ctx, &fakeAdapter{repo: "alpha", revision: "rev-1", files: files(4)})
	require.NoError(t, err)

	assert.Equal(t, kb.ProvenancePartial, report.Status)
	assert.Equal(t, 25.0, report.CoveragePct)
	assert.True(t, report.RevisionMatch)
}

func TestVerifyRepo_StaleBeatsCoverage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 1,
		Records: []*kb.RawRecord{record("alpha", "rev-1", "a.md")},
	}))

	v := New(s, nil)
	report, err := v.VerifyRepo(ctx, &fakeAdapter{repo: "alpha", revision: "rev-2", files: files(1)})
	require.NoError(t, err)

	assert.Equal(t, kb.ProvenanceStale, report.Status,
		"revision mismatch is stale regardless of coverage")
	assert.False(t, report.RevisionMatch)

	p, err := s.Provenance(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, kb.ProvenanceStale, p.Status, "conclusion persisted to provenance")
}

func TestVerifyRepo_Missing(t *testing.T) {
	s := openStore(t)

	v := New(s, nil)
	report, err := v.VerifyRepo(context.Background(),
		&fakeAdapter{repo: "ghost", revision: "rev-1", files: files(2)})
	require.NoError(t, err)

	assert.Equal(t, kb.ProvenanceMissing, report.Status)
	assert.Equal(t, 0, report.FilesInStore)

	p, err := s.Provenance(context.Background(), "ghost")
	require.NoError(t, err)
	require.NotNil(t, p, "missing conclusion persisted even without a prior row")
	assert.Equal(t, kb.ProvenanceMissing, p.Status)
}

func TestVerifyRepo_NeverMutatesEntities(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := &kb.Concept{
		ID: kb.ConceptID("Thing", "alpha"), Name: "Thing",
		SourceRepo: "alpha", Type: kb.ConceptTypeOther,
	}
	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 1,
		Records:  []*kb.RawRecord{record("alpha", "rev-1", "a.md")},
		Entities: &kb.EntitySet{Concepts: []*kb.Concept{c}},
	}))

	v := New(s, nil)
	_, err := v.VerifyRepo(ctx, &fakeAdapter{repo: "alpha", revision: "rev-9", files: files(5)})
	require.NoError(t, err)

	assert.Len(t, s.Snapshot().Concepts(), 1, "stale detection does not retire entities")
}

func TestVerifyAll(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 1,
		Records: []*kb.RawRecord{record("alpha", "rev-1", "a.md")},
	}))

	v := New(s, nil)
	reports, err := v.VerifyAll(ctx, []source.Adapter{
		&fakeAdapter{repo: "alpha", revision: "rev-1", files: files(1)},
		&fakeAdapter{repo: "beta", revision: "rev-1", files: files(2)},
	})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, kb.ProvenanceOK, reports[0].Status)
	assert.Equal(t, kb.ProvenanceMissing, reports[1].Status)
}

type downAdapter struct {
	repo string
}

func (d *downAdapter) Repo() string { return d.repo }
func (d *downAdapter) Revision(context.Context) (string, error) {
	return "", errors.New("connection refused")
}
func (d *downAdapter) ListFiles(context.Context) ([]source.FileInfo, error) {
	return nil, errors.New("connection refused")
}
func (d *downAdapter) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestVerifyAll_AdapterFailurePersistsMissing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceRepository(ctx, &store.RepoBatch{
		Repo: "alpha", Revision: "rev-1", FilesSeen: 1,
		Records: []*kb.RawRecord{record("alpha", "rev-1", "a.md")},
	}))

	v := New(s, nil)
	reports, err := v.VerifyAll(ctx, []source.Adapter{&downAdapter{repo: "alpha"}})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, kb.ProvenanceMissing, reports[0].Status)

	p, err := s.Provenance(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, kb.ProvenanceMissing, p.Status)
	assert.Equal(t, "rev-1", p.Revision, "unreachable source does not erase stored counts")
}
