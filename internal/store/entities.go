package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/kb"
)

// Entity partition directories under <store>/entities. Cross-repository
// entities (equivalences, principles, patterns) live in the reserved
// crossPartition so replacing one repository never touches them.
const (
	conceptsDir      = "concepts"
	relationshipsDir = "relationships"
	principlesDir    = "principles"
	patternsDir      = "patterns"

	crossPartition = "_cross"
)

// RepoBatch is everything the pipeline commits for one repository at
// one revision.
type RepoBatch struct {
	Repo      string
	Revision  string
	Records   []*kb.RawRecord
	Skips     []extract.Skip
	FilesSeen int
	Entities  *kb.EntitySet
}

// ReplaceRepository atomically replaces everything attributable to one
// repository: raw rows from other revisions are retired, entity
// partitions rewritten, provenance updated, and the read snapshot
// swapped last so readers never observe a half-migrated repository.
// Concurrent replaces of the same repository serialize; different
// repositories commit concurrently.
func (s *Store) ReplaceRepository(ctx context.Context, batch *RepoBatch) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if batch.Repo == "" || batch.Repo == crossPartition {
		return fmt.Errorf("invalid repository name %q", batch.Repo)
	}

	lock := s.repoLock(batch.Repo)
	lock.Lock()
	defer lock.Unlock()

	entities := batch.Entities
	if entities == nil {
		entities = &kb.EntitySet{}
	}

	// Entity partitions first: until the snapshot swap below, readers
	// still see the previous view.
	if err := s.writePartition(conceptsDir, batch.Repo, entities.Concepts); err != nil {
		return err
	}
	if err := s.writePartition(relationshipsDir, batch.Repo, entities.Relationships); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeRawTx(ctx, tx, batch.Repo, batch.Revision, batch.Records, batch.Skips); err != nil {
		return err
	}

	status := kb.ProvenanceOK
	if len(batch.Records)+len(batch.Skips) < batch.FilesSeen {
		status = kb.ProvenancePartial
	}
	if err := writeProvenanceTx(ctx, tx, &kb.Provenance{
		SourceRepo:        batch.Repo,
		Revision:          batch.Revision,
		FileCountSeen:     batch.FilesSeen,
		RecordCountStored: len(batch.Records),
		SkipCount:         len(batch.Skips),
		LastVerifiedAt:    time.Now().UTC(),
		Status:            status,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return kberrors.New(kberrors.ErrCodeStoreConflict, "failed to commit repository replace", err)
	}

	return s.refreshSnapshot()
}

// ReplaceCrossEntities replaces the cross-repository partition written
// by the join pass: equivalence edges, principles, and patterns.
func (s *Store) ReplaceCrossEntities(ctx context.Context, entities *kb.EntitySet) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	lock := s.repoLock(crossPartition)
	lock.Lock()
	defer lock.Unlock()

	if entities == nil {
		entities = &kb.EntitySet{}
	}
	if err := s.writePartition(relationshipsDir, crossPartition, entities.Relationships); err != nil {
		return err
	}
	if err := s.writePartition(principlesDir, crossPartition, entities.Principles); err != nil {
		return err
	}
	if err := s.writePartition(patternsDir, crossPartition, entities.Patterns); err != nil {
		return err
	}
	return s.refreshSnapshot()
}

// writePartition atomically writes one (type, repo) JSON partition.
// Empty partitions are removed rather than written.
func (s *Store) writePartition(kind, repo string, v any) error {
	dir := filepath.Join(s.dir, "entities", kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}
	path := filepath.Join(dir, repo+".json")

	if isEmptySlice(v) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove empty partition: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal partition %s/%s: %w", kind, repo, err)
	}
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write partition %s/%s: %w", kind, repo, err)
	}
	return nil
}

func isEmptySlice(v any) bool {
	switch t := v.(type) {
	case []*kb.Concept:
		return len(t) == 0
	case []*kb.Relationship:
		return len(t) == 0
	case []*kb.Principle:
		return len(t) == 0
	case []*kb.Pattern:
		return len(t) == 0
	}
	return false
}

// refreshSnapshot rebuilds the read view from disk and swaps it in.
func (s *Store) refreshSnapshot() error {
	snap, err := s.loadSnapshot()
	if err != nil {
		return err
	}
	s.snapshot.Store(snap)
	return nil
}

// loadSnapshot reads every entity partition into an immutable view.
func (s *Store) loadSnapshot() (*Snapshot, error) {
	snap := newSnapshot()

	if err := loadPartitions(filepath.Join(s.dir, "entities", conceptsDir), func(repo string, data []byte) error {
		var concepts []*kb.Concept
		if err := json.Unmarshal(data, &concepts); err != nil {
			return err
		}
		snap.addConcepts(concepts)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadPartitions(filepath.Join(s.dir, "entities", relationshipsDir), func(repo string, data []byte) error {
		var rels []*kb.Relationship
		if err := json.Unmarshal(data, &rels); err != nil {
			return err
		}
		snap.addRelationships(rels)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadPartitions(filepath.Join(s.dir, "entities", principlesDir), func(repo string, data []byte) error {
		var principles []*kb.Principle
		if err := json.Unmarshal(data, &principles); err != nil {
			return err
		}
		snap.addPrinciples(principles)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadPartitions(filepath.Join(s.dir, "entities", patternsDir), func(repo string, data []byte) error {
		var patterns []*kb.Pattern
		if err := json.Unmarshal(data, &patterns); err != nil {
			return err
		}
		snap.addPatterns(patterns)
		return nil
	}); err != nil {
		return nil, err
	}

	snap.finalize()
	return snap, nil
}

func loadPartitions(dir string, load func(repo string, data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read partition directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read partition %s: %w", e.Name(), err)
		}
		repo := strings.TrimSuffix(e.Name(), ".json")
		if err := load(repo, data); err != nil {
			return kberrors.New(kberrors.ErrCodeStoreCorrupt,
				fmt.Sprintf("corrupt entity partition %s", e.Name()), err)
		}
	}
	return nil
}
