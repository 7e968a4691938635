// Package source provides the adapter abstraction over external
// repository snapshots: listing candidate files and reading content
// with bounded timeouts. Adapters know nothing about downstream
// extraction semantics.
package source

import (
	"context"
	"errors"

	"github.com/Aman-CERP/knowbase/internal/kb"
)

// Sentinel errors returned by adapter reads.
var (
	// ErrNotFound indicates the path does not exist in the snapshot.
	ErrNotFound = errors.New("source: file not found")
	// ErrTimeout indicates the per-file read deadline expired. Callers
	// skip and record the file; they never retry unboundedly.
	ErrTimeout = errors.New("source: read timed out")
)

// FileInfo describes one candidate file yielded by ListFiles.
type FileInfo struct {
	Path        string
	ContentType kb.ContentType
	Size        int64
}

// Adapter reads a named external repository snapshot.
type Adapter interface {
	// Repo returns the repository name.
	Repo() string

	// Revision returns the snapshot's revision identifier.
	Revision(ctx context.Context) (string, error)

	// ListFiles yields candidate files matching the adapter's filters.
	ListFiles(ctx context.Context) ([]FileInfo, error)

	// Read returns the content of one file. Fails with ErrNotFound or
	// ErrTimeout.
	Read(ctx context.Context, path string) ([]byte, error)
}
