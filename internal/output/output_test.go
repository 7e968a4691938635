package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMessages(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("extraction complete")
	w.Warningf("%d files skipped", 3)
	w.Error("store locked")
	w.Status("", "indented detail")

	out := buf.String()
	assert.Contains(t, out, "✅ extraction complete")
	assert.Contains(t, out, "3 files skipped")
	assert.Contains(t, out, "❌ store locked")
	assert.Contains(t, out, "   indented detail")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Progress(5, 10, "alpha")
	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "alpha")
	assert.False(t, strings.HasSuffix(out, "\n"), "incomplete progress stays on the line")

	w.Progress(10, 10, "alpha")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"), "completion ends the line")
}

func TestProgress_ZeroTotalIgnored(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	w.Progress(1, 0, "x")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBar_Bounds(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 30), renderProgressBar(10, 10, 30))
	assert.Equal(t, strings.Repeat("░", 30), renderProgressBar(0, 10, 30))
	assert.Equal(t, strings.Repeat("█", 30), renderProgressBar(20, 10, 30))
}
