package preflight

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/source"
)

type stubAdapter struct {
	repo string
	err  error
}

func (s *stubAdapter) Repo() string { return s.repo }
func (s *stubAdapter) Revision(context.Context) (string, error) {
	return "rev-1", s.err
}
func (s *stubAdapter) ListFiles(context.Context) ([]source.FileInfo, error) { return nil, nil }
func (s *stubAdapter) Read(context.Context, string) ([]byte, error) {
	return nil, source.ErrNotFound
}

type downEmbedder struct{ *embed.StaticEmbedder }

func (downEmbedder) Available(context.Context) bool { return false }

func TestRunAll_AllPass(t *testing.T) {
	c := New(
		WithEmbedder(embed.NewStaticEmbedder(64)),
		WithAdapters([]source.Adapter{&stubAdapter{repo: "alpha"}}),
		WithOutput(&bytes.Buffer{}),
	)

	results := c.RunAll(context.Background(), t.TempDir())
	require.NotEmpty(t, results)
	assert.False(t, c.HasCriticalFailures(results))
	assert.Equal(t, "ready", c.SummaryStatus(results))
}

func TestRunAll_EmbedderDownIsWarning(t *testing.T) {
	c := New(WithEmbedder(downEmbedder{embed.NewStaticEmbedder(64)}))

	result := c.CheckEmbedder(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Required, "degraded search is not a hard failure")
}

func TestCheckEmbedder_NoneConfigured(t *testing.T) {
	c := New()
	result := c.CheckEmbedder(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "keyword-only")
}

func TestCheckSources_UnreachableIsWarning(t *testing.T) {
	c := New(WithAdapters([]source.Adapter{
		&stubAdapter{repo: "alpha"},
		&stubAdapter{repo: "broken", err: errors.New("no such directory")},
	}))

	results := c.CheckSources(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusPass, results[0].Status)
	assert.Equal(t, StatusWarn, results[1].Status)
	assert.False(t, c.HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus(results))
}

func TestCheckWritePermissions_CreatesDir(t *testing.T) {
	c := New()
	dir := t.TempDir() + "/nested/store"
	result := c.CheckWritePermissions(dir)
	assert.Equal(t, StatusPass, result.Status)
}

func TestMarker(t *testing.T) {
	dir := t.TempDir()

	assert.True(t, NeedsCheck(dir))
	require.NoError(t, MarkPassed(dir))
	assert.False(t, NeedsCheck(dir))
	assert.LessOrEqual(t, MarkerAge(dir), time.Minute)
	require.NoError(t, ClearMarker(dir))
	assert.True(t, NeedsCheck(dir))
	require.NoError(t, ClearMarker(dir), "clearing twice is fine")
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithOutput(&buf), WithVerbose(true))

	c.PrintResults([]CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "10 GB free", Required: true},
		{Name: "embedder", Status: StatusWarn, Message: "unavailable", Details: "start ollama"},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space")
	assert.Contains(t, out, "[WARN] embedder")
	assert.Contains(t, out, "start ollama")
	assert.Contains(t, out, "READY_WITH_WARNINGS")
}
