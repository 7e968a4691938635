package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/kb"
)

// RawRecordHashes returns path -> content hash for one repository at
// one revision. The extractor uses it to skip unchanged files when
// resuming.
func (s *Store) RawRecordHashes(ctx context.Context, repo, revision string) (map[string]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content_hash FROM raw_records WHERE source_repo = ? AND revision = ?`,
		repo, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// RawRecords returns all records for one repository at its stored
// revision, ordered by path.
func (s *Store) RawRecords(ctx context.Context, repo string) ([]*kb.RawRecord, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_repo, revision, path, content_type, title, summary,
		       raw_text, content_hash, truncated, extracted_at
		FROM raw_records WHERE source_repo = ? ORDER BY path`, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw records: %w", err)
	}
	defer rows.Close()

	var records []*kb.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRawRecord(rows *sql.Rows) (*kb.RawRecord, error) {
	var rec kb.RawRecord
	var truncated int
	var extractedAt string
	if err := rows.Scan(&rec.SourceRepo, &rec.Revision, &rec.Path, &rec.ContentType,
		&rec.Title, &rec.Summary, &rec.RawText, &rec.ContentHash,
		&truncated, &extractedAt); err != nil {
		return nil, err
	}
	rec.Truncated = truncated != 0
	if t, err := time.Parse(time.RFC3339Nano, extractedAt); err == nil {
		rec.ExtractedAt = t
	}
	return &rec, nil
}

// writeRawTx replaces one repository's raw rows inside tx: rows from
// other revisions are deleted, current-revision rows are upserted by
// key. Unchanged (same content hash) rows keep their original
// extracted_at so re-extraction is a true no-op.
func writeRawTx(ctx context.Context, tx *sql.Tx, repo, revision string, records []*kb.RawRecord, skips []extract.Skip) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM raw_records WHERE source_repo = ? AND revision != ?`, repo, revision); err != nil {
		return fmt.Errorf("failed to retire stale raw records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM skips WHERE source_repo = ?`, repo); err != nil {
		return fmt.Errorf("failed to clear skips: %w", err)
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (source_repo, revision, path, content_type, title,
			summary, raw_text, content_hash, truncated, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_repo, revision, path) DO UPDATE SET
			content_type = excluded.content_type,
			title        = excluded.title,
			summary      = excluded.summary,
			raw_text     = excluded.raw_text,
			content_hash = excluded.content_hash,
			truncated    = excluded.truncated,
			extracted_at = excluded.extracted_at
		WHERE raw_records.content_hash != excluded.content_hash`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsert.Close()

	for _, rec := range records {
		truncated := 0
		if rec.Truncated {
			truncated = 1
		}
		if _, err := upsert.ExecContext(ctx, rec.SourceRepo, rec.Revision, rec.Path,
			string(rec.ContentType), rec.Title, rec.Summary, rec.RawText,
			rec.ContentHash, truncated, rec.ExtractedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", rec.Path, err)
		}
	}

	skipStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO skips (source_repo, revision, path, reason) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare skip insert: %w", err)
	}
	defer skipStmt.Close()

	for _, sk := range skips {
		if _, err := skipStmt.ExecContext(ctx, repo, revision, sk.Path, sk.Reason); err != nil {
			return fmt.Errorf("failed to record skip %s: %w", sk.Path, err)
		}
	}
	return nil
}

// Skips returns the recorded skips for one repository.
func (s *Store) Skips(ctx context.Context, repo string) ([]extract.Skip, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, reason FROM skips WHERE source_repo = ? ORDER BY path`, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to query skips: %w", err)
	}
	defer rows.Close()

	var skips []extract.Skip
	for rows.Next() {
		var sk extract.Skip
		if err := rows.Scan(&sk.Path, &sk.Reason); err != nil {
			return nil, err
		}
		skips = append(skips, sk)
	}
	return skips, rows.Err()
}

// Provenance returns the bookkeeping record for one repository, or nil
// when the repository has never been stored.
func (s *Store) Provenance(ctx context.Context, repo string) (*kb.Provenance, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT source_repo, revision, file_count_seen, record_count_stored,
		       skip_count, last_verified_at, status
		FROM provenance WHERE source_repo = ?`, repo)

	var p kb.Provenance
	var verifiedAt string
	err := row.Scan(&p.SourceRepo, &p.Revision, &p.FileCountSeen,
		&p.RecordCountStored, &p.SkipCount, &verifiedAt, &p.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query provenance: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, verifiedAt); err == nil {
		p.LastVerifiedAt = t
	}
	return &p, nil
}

// UpdateProvenanceStatus writes the verifier's conclusion back without
// touching any entity data.
func (s *Store) UpdateProvenanceStatus(ctx context.Context, repo string, status kb.ProvenanceStatus, verifiedAt time.Time) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE provenance SET status = ?, last_verified_at = ? WHERE source_repo = ?`,
		string(status), verifiedAt.UTC().Format(time.RFC3339Nano), repo)
	return err
}

// MarkProvenanceMissing records that a repository's source stayed
// unreachable. Unlike UpdateProvenanceStatus it inserts the row when
// the repository has never been stored; existing revision and counts
// are preserved.
func (s *Store) MarkProvenanceMissing(ctx context.Context, repo string, at time.Time) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provenance (source_repo, revision, file_count_seen,
			record_count_stored, skip_count, last_verified_at, status)
		VALUES (?, '', 0, 0, 0, ?, ?)
		ON CONFLICT (source_repo) DO UPDATE SET
			status           = excluded.status,
			last_verified_at = excluded.last_verified_at`,
		repo, at.UTC().Format(time.RFC3339Nano), string(kb.ProvenanceMissing))
	return err
}

func writeProvenanceTx(ctx context.Context, tx *sql.Tx, p *kb.Provenance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO provenance (source_repo, revision, file_count_seen,
			record_count_stored, skip_count, last_verified_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_repo) DO UPDATE SET
			revision            = excluded.revision,
			file_count_seen     = excluded.file_count_seen,
			record_count_stored = excluded.record_count_stored,
			skip_count          = excluded.skip_count,
			last_verified_at    = excluded.last_verified_at,
			status              = excluded.status`,
		p.SourceRepo, p.Revision, p.FileCountSeen, p.RecordCountStored,
		p.SkipCount, p.LastVerifiedAt.UTC().Format(time.RFC3339Nano), string(p.Status))
	if err != nil {
		return fmt.Errorf("failed to write provenance: %w", err)
	}
	return nil
}
