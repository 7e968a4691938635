// Package store owns durable persistence for the knowledge base: raw
// extraction records, skips, and provenance in SQLite; derived entities
// as human-inspectable JSON partitioned by entity type and repository.
// Readers work against immutable snapshots and never block on writers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Store is the single owner of all persisted knowledge-base state.
type Store struct {
	dir  string
	db   *sql.DB
	lock *flock.Flock

	// snapshot holds the current immutable read view. Writers build a
	// fresh snapshot and swap the pointer; readers never lock.
	snapshot atomic.Pointer[Snapshot]

	// repoMu serializes revision-replace per repository. Different
	// repositories commit concurrently.
	mu     sync.Mutex
	repoMu map[string]*sync.Mutex

	closed atomic.Bool
}

// Open creates or opens the store rooted at dir. The directory is
// locked against other processes; a held lock surfaces as StoreConflict.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return nil, kberrors.StoreConflict(dir)
	}

	db, err := openDB(filepath.Join(dir, "knowbase.db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := &Store{
		dir:    dir,
		db:     db,
		lock:   lock,
		repoMu: make(map[string]*sync.Mutex),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	snap, err := s.loadSnapshot()
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	s.snapshot.Store(snap)
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention; readers use snapshots.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS raw_records (
		source_repo  TEXT NOT NULL,
		revision     TEXT NOT NULL,
		path         TEXT NOT NULL,
		content_type TEXT NOT NULL,
		title        TEXT NOT NULL,
		summary      TEXT NOT NULL,
		raw_text     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		truncated    INTEGER NOT NULL DEFAULT 0,
		extracted_at TEXT NOT NULL,
		PRIMARY KEY (source_repo, revision, path)
	);

	CREATE TABLE IF NOT EXISTS skips (
		source_repo TEXT NOT NULL,
		revision    TEXT NOT NULL,
		path        TEXT NOT NULL,
		reason      TEXT NOT NULL,
		PRIMARY KEY (source_repo, revision, path)
	);

	CREATE TABLE IF NOT EXISTS provenance (
		source_repo         TEXT PRIMARY KEY,
		revision            TEXT NOT NULL,
		file_count_seen     INTEGER NOT NULL,
		record_count_stored INTEGER NOT NULL,
		skip_count          INTEGER NOT NULL,
		last_verified_at    TEXT NOT NULL,
		status              TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// repoLock returns the mutex serializing writes for one repository.
func (s *Store) repoLock(repo string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.repoMu[repo]
	if !ok {
		m = &sync.Mutex{}
		s.repoMu[repo] = m
	}
	return m
}

// Snapshot returns the current immutable read view.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Dir returns the store root directory.
func (s *Store) Dir() string { return s.dir }

// Close releases the database and the directory lock.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

func (s *Store) checkOpen(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("store is closed")
	}
	return ctx.Err()
}
