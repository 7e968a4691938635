package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Aman-CERP/knowbase/internal/gitignore"
	"github.com/Aman-CERP/knowbase/internal/kb"
)

// FSAdapter reads a repository snapshot from a local directory tree.
type FSAdapter struct {
	repo         string
	root         string
	include      []string
	exclude      []string
	useGitignore bool
	readTimeout  time.Duration
}

// Option configures an FSAdapter.
type Option func(*FSAdapter)

// WithFilters sets the include/exclude doublestar globs.
func WithFilters(include, exclude []string) Option {
	return func(a *FSAdapter) {
		a.include = include
		a.exclude = exclude
	}
}

// WithGitignore makes the walk honor the snapshot's gitignore files.
func WithGitignore(enabled bool) Option {
	return func(a *FSAdapter) {
		a.useGitignore = enabled
	}
}

// WithReadTimeout bounds each file read.
func WithReadTimeout(d time.Duration) Option {
	return func(a *FSAdapter) {
		a.readTimeout = d
	}
}

// NewFSAdapter creates an adapter over the directory tree at root.
func NewFSAdapter(repo, root string, opts ...Option) *FSAdapter {
	a := &FSAdapter{
		repo:        repo,
		root:        root,
		include:     []string{"**/*"},
		readTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Repo returns the repository name.
func (a *FSAdapter) Repo() string { return a.repo }

// Revision resolves the snapshot revision: git HEAD when the snapshot
// carries one, then a REVISION marker file, then a digest of the file
// listing as a last resort.
func (a *FSAdapter) Revision(ctx context.Context) (string, error) {
	if rev, ok := a.gitRevision(); ok {
		return rev, nil
	}
	if data, err := os.ReadFile(filepath.Join(a.root, "REVISION")); err == nil {
		if rev := strings.TrimSpace(string(data)); rev != "" {
			return rev, nil
		}
	}
	return a.listingDigest(ctx)
}

// gitRevision reads .git/HEAD and resolves symbolic refs.
func (a *FSAdapter) gitRevision() (string, bool) {
	head, err := os.ReadFile(filepath.Join(a.root, ".git", "HEAD"))
	if err != nil {
		return "", false
	}
	ref := strings.TrimSpace(string(head))

	if !strings.HasPrefix(ref, "ref: ") {
		// Detached HEAD: the file holds the hash itself.
		return ref, ref != ""
	}

	refPath := strings.TrimPrefix(ref, "ref: ")
	if data, err := os.ReadFile(filepath.Join(a.root, ".git", filepath.FromSlash(refPath))); err == nil {
		return strings.TrimSpace(string(data)), true
	}

	// Fall back to packed-refs.
	packed, err := os.ReadFile(filepath.Join(a.root, ".git", "packed-refs"))
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(packed), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == refPath {
			return fields[0], true
		}
	}
	return "", false
}

// listingDigest hashes the sorted (path, size) listing so unchanged
// snapshots yield a stable revision.
func (a *FSAdapter) listingDigest(ctx context.Context) (string, error) {
	files, err := a.ListFiles(ctx)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\n", f.Path, f.Size)
	}
	return "listing-" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// ListFiles walks the snapshot and yields candidate files matching the
// filters, sorted by path for determinism.
func (a *FSAdapter) ListFiles(ctx context.Context) ([]FileInfo, error) {
	if _, err := os.Stat(a.root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, a.root, err)
	}

	var ignore *gitignore.Matcher
	if a.useGitignore {
		ignore = gitignore.New()
	}

	var files []FileInfo
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		name := d.Name()
		if d.IsDir() {
			// Hidden directories (.git and friends) never contribute.
			if strings.HasPrefix(name, ".") && path != a.root {
				return filepath.SkipDir
			}
			if ignore != nil {
				if rel != "." && ignore.Match(rel, true) {
					return filepath.SkipDir
				}
				base := rel
				if base == "." {
					base = ""
				}
				if gi := filepath.Join(path, ".gitignore"); fileExists(gi) {
					_ = ignore.AddFromFile(gi, base)
				}
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if ignore != nil && ignore.Match(rel, false) {
			return nil
		}

		if !a.matches(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // File vanished mid-walk; skip.
		}

		files = append(files, FileInfo{
			Path:        rel,
			ContentType: ClassifyPath(rel),
			Size:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// matches applies include then exclude globs.
func (a *FSAdapter) matches(rel string) bool {
	included := false
	for _, pat := range a.include {
		if ok, _ := doublestar.Match(pat, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pat := range a.exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return false
		}
	}
	return true
}

// Read returns one file's content, bounded by the read timeout.
func (a *FSAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.readTimeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(path)))
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if os.IsNotExist(r.err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, r.err
		}
		return r.data, nil
	}
}

// ClassifyPath maps a file path to its content type using extension
// and path heuristics.
func ClassifyPath(path string) kb.ContentType {
	lower := strings.ToLower(path)
	base := filepath.Base(lower)
	ext := filepath.Ext(lower)

	switch {
	case strings.Contains(lower, "spec"):
		return kb.ContentTypeSpecification
	case strings.HasPrefix(base, "readme"):
		return kb.ContentTypeDocumentation
	case strings.Contains(base, "test") || strings.Contains(base, "_test."):
		return kb.ContentTypeTest
	}

	switch ext {
	case ".md", ".rst", ".txt":
		return kb.ContentTypeDocumentation
	case ".json", ".yaml", ".yml", ".toml", ".cfg", ".conf":
		return kb.ContentTypeConfiguration
	case ".go", ".py", ".ts", ".js", ".rs", ".ex":
		return kb.ContentTypeCode
	default:
		return kb.ContentTypeOther
	}
}
