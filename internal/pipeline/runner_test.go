package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/process"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
)

type memAdapter struct {
	repo     string
	revision string
	files    map[string]string
	down     bool
}

func (m *memAdapter) Repo() string { return m.repo }

func (m *memAdapter) Revision(context.Context) (string, error) {
	if m.down {
		return "", errors.New("connection refused")
	}
	return m.revision, nil
}

func (m *memAdapter) ListFiles(context.Context) ([]source.FileInfo, error) {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]source.FileInfo, 0, len(paths))
	for _, p := range paths {
		out = append(out, source.FileInfo{
			Path:        p,
			Size:        int64(len(m.files[p])),
			ContentType: source.ClassifyPath(p),
		})
	}
	return out, nil
}

func (m *memAdapter) Read(_ context.Context, path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, source.ErrNotFound
	}
	return []byte(content), nil
}

func newRunner(t *testing.T) (*Runner, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ex := extract.New(extract.Options{}, nil)
	pr := process.New(process.Options{
		Vocabulary: []string{"tool", "discovery", "manual", "registry"},
	}, nil)
	r := New(ex, pr, s, 2, nil, WithRetryConfig(kberrors.RetryConfig{MaxRetries: 0}))
	return r, s
}

func docRepo(repo string) *memAdapter {
	return &memAdapter{
		repo:     repo,
		revision: "rev-1",
		files: map[string]string{
			"docs/discovery.md": "# Tool Discovery\n\nProviders advertise a tool registry and clients perform discovery against it.\n",
			"docs/manual.md":    "# Manual Registration\n\nA manual alternative to tool discovery for static registry deployments.\n",
		},
	}
}

func TestRun_CommitsRepositories(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	report, err := r.Run(ctx, []source.Adapter{docRepo("alpha"), docRepo("beta")})
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Repos, 2)

	for _, run := range report.Repos {
		assert.Equal(t, 2, run.Records)
		assert.Equal(t, 2, run.Concepts)
		assert.False(t, run.Unchanged)
	}

	snap := s.Snapshot()
	assert.Len(t, snap.Concepts(), 4)

	prov, err := s.Provenance(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, prov)
	assert.Equal(t, "rev-1", prov.Revision)
	assert.Equal(t, 2, prov.RecordCountStored)
}

func TestRun_CrossRepoJoin(t *testing.T) {
	r, s := newRunner(t)

	report, err := r.Run(context.Background(), []source.Adapter{docRepo("alpha"), docRepo("beta")})
	require.NoError(t, err)

	assert.Greater(t, report.Principles, 0, "shared names across repos promote principles")

	var equivalences int
	for _, e := range s.Snapshot().Relationships() {
		if e.Kind == kb.RelationEquivalentTo {
			equivalences++
		}
	}
	assert.Greater(t, equivalences, 0, "same-name concepts linked across repos")
}

func TestRun_SecondRunUnchanged(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()
	adapters := []source.Adapter{docRepo("alpha"), docRepo("beta")}

	_, err := r.Run(ctx, adapters)
	require.NoError(t, err)
	before := len(s.Snapshot().Concepts())

	report, err := r.Run(ctx, adapters)
	require.NoError(t, err)

	for _, run := range report.Repos {
		assert.True(t, run.Unchanged, "matching revision and hashes skip the rewrite")
	}
	assert.Len(t, s.Snapshot().Concepts(), before)
}

func TestRun_RevisionChangeReplaces(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	adapter := docRepo("alpha")
	_, err := r.Run(ctx, []source.Adapter{adapter})
	require.NoError(t, err)

	adapter.revision = "rev-2"
	delete(adapter.files, "docs/manual.md")

	report, err := r.Run(ctx, []source.Adapter{adapter})
	require.NoError(t, err)
	require.False(t, report.Repos[0].Unchanged)

	snap := s.Snapshot()
	assert.Len(t, snap.Concepts(), 1, "retired file's concept is gone")

	prov, err := s.Provenance(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "rev-2", prov.Revision)
}

func TestRun_SourceFailureDoesNotAbortBatch(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	report, err := r.Run(ctx, []source.Adapter{
		&memAdapter{repo: "broken", down: true},
		docRepo("beta"),
	})
	require.NoError(t, err)
	require.Len(t, report.Repos, 2)

	assert.Equal(t, 1, report.Repos[0].Errors)
	assert.Equal(t, 0, report.Repos[0].Records)
	assert.Equal(t, 2, report.Repos[1].Records)

	prov, err := s.Provenance(ctx, "beta")
	require.NoError(t, err)
	require.NotNil(t, prov, "healthy repository committed despite sibling failure")
}

func TestRun_SourceFailureMarksProvenanceMissing(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	_, err := r.Run(ctx, []source.Adapter{
		&memAdapter{repo: "broken", down: true},
	})
	require.NoError(t, err)

	prov, err := s.Provenance(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, prov, "exhausted retries leave a provenance row behind")
	assert.Equal(t, kb.ProvenanceMissing, prov.Status)
	assert.False(t, prov.LastVerifiedAt.IsZero())
}

func TestRun_SourceFailureKeepsPriorCounts(t *testing.T) {
	r, s := newRunner(t)
	ctx := context.Background()

	adapter := docRepo("alpha")
	_, err := r.Run(ctx, []source.Adapter{adapter})
	require.NoError(t, err)

	adapter.down = true
	_, err = r.Run(ctx, []source.Adapter{adapter})
	require.NoError(t, err)

	prov, err := s.Provenance(ctx, "alpha")
	require.NoError(t, err)
	require.NotNil(t, prov)
	assert.Equal(t, kb.ProvenanceMissing, prov.Status)
	assert.Equal(t, "rev-1", prov.Revision, "last good revision survives the outage")
	assert.Equal(t, 2, prov.RecordCountStored)
}

func TestRun_Cancelled(t *testing.T) {
	r, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, []source.Adapter{docRepo("alpha")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
