package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListFiles_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Alpha")
	writeFile(t, root, "docs/spec.md", "# Spec")
	writeFile(t, root, "src/main.py", "print('hi')")
	writeFile(t, root, "node_modules/dep/index.js", "ignored")
	writeFile(t, root, ".hidden", "ignored")

	a := NewFSAdapter("alpha", root, WithFilters(
		[]string{"**/*.md", "**/*.py"},
		[]string{"**/node_modules/**"},
	))

	files, err := a.ListFiles(context.Background())
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{"README.md", "docs/spec.md", "src/main.py"}, paths)
}

func TestListFiles_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nvendor/\n")
	writeFile(t, root, "README.md", "# Alpha")
	writeFile(t, root, "debug.log", "noise")
	writeFile(t, root, "vendor/lib/code.go", "package lib")
	writeFile(t, root, "sub/.gitignore", "*.tmp\n")
	writeFile(t, root, "sub/keep.md", "keep")
	writeFile(t, root, "sub/scratch.tmp", "noise")

	a := NewFSAdapter("alpha", root, WithGitignore(true))
	files, err := a.ListFiles(context.Background())
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{"README.md", "sub/keep.md"}, paths)
}

func TestListFiles_GitignoreDisabledByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "debug.log", "noise")

	a := NewFSAdapter("alpha", root)
	files, err := a.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "debug.log", files[0].Path)
}

func TestListFiles_MissingRoot(t *testing.T) {
	a := NewFSAdapter("alpha", filepath.Join(t.TempDir(), "absent"))
	_, err := a.ListFiles(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Alpha")

	a := NewFSAdapter("alpha", root)

	data, err := a.Read(context.Background(), "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# Alpha", string(data))

	_, err = a.Read(context.Background(), "missing.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevision_GitHead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, ".git/refs/heads/main", "abc123def456\n")

	a := NewFSAdapter("alpha", root)
	rev, err := a.Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123def456", rev)
}

func TestRevision_DetachedHead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "deadbeef\n")

	a := NewFSAdapter("alpha", root)
	rev, err := a.Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", rev)
}

func TestRevision_MarkerFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "REVISION", "v2.1.0\n")

	a := NewFSAdapter("alpha", root)
	rev, err := a.Revision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2.1.0", rev)
}

func TestRevision_ListingDigestIsStable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Alpha")
	writeFile(t, root, "docs/guide.md", "guide")

	a := NewFSAdapter("alpha", root)
	rev1, err := a.Revision(context.Background())
	require.NoError(t, err)
	rev2, err := a.Revision(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rev1, rev2, "unchanged tree yields stable revision")

	writeFile(t, root, "docs/extra.md", "more")
	rev3, err := a.Revision(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev3, "changed tree yields new revision")
}

func TestClassifyPath(t *testing.T) {
	tests := []struct {
		path string
		want kb.ContentType
	}{
		{"README.md", kb.ContentTypeDocumentation},
		{"docs/guide.rst", kb.ContentTypeDocumentation},
		{"spec/protocol.md", kb.ContentTypeSpecification},
		{"openapi-spec.yaml", kb.ContentTypeSpecification},
		{"config.yaml", kb.ContentTypeConfiguration},
		{"pkg/server.go", kb.ContentTypeCode},
		{"src/client.py", kb.ContentTypeCode},
		{"pkg/server_test.go", kb.ContentTypeTest},
		{"tests/conftest.py", kb.ContentTypeTest},
		{"assets/logo.png", kb.ContentTypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPath(tt.path))
		})
	}
}
