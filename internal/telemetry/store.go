package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// MetricsStore persists query metric aggregates in a local SQLite
// database, separate from the entity store.
type MetricsStore struct {
	db *sql.DB
}

// OpenMetricsStore opens (or creates) the metrics database at path.
func OpenMetricsStore(path string) (*MetricsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure metrics db: %w", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS mode_counts (
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (date, mode)
);
CREATE TABLE IF NOT EXISTS latency_counts (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (date, bucket)
);
CREATE TABLE IF NOT EXISTS term_counts (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}
	return &MetricsStore{db: db}, nil
}

// SaveModeCounts upserts the per-mode counts for one day.
func (s *MetricsStore) SaveModeCounts(date string, counts map[string]int64) error {
	return s.upsertCounts("mode_counts", "mode", date, counts)
}

// SaveLatencyCounts upserts the latency histogram for one day.
func (s *MetricsStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	plain := make(map[string]int64, len(counts))
	for k, v := range counts {
		plain[string(k)] = v
	}
	return s.upsertCounts("latency_counts", "bucket", date, plain)
}

func (s *MetricsStore) upsertCounts(table, keyCol, date string, counts map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt := fmt.Sprintf(`INSERT INTO %s (date, %s, count) VALUES (?, ?, ?)
		ON CONFLICT (date, %s) DO UPDATE SET count = excluded.count`, table, keyCol, keyCol)
	for key, count := range counts {
		if _, err := tx.Exec(stmt, date, key, count); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertTermCounts replaces stored term frequencies with the given
// values when larger.
func (s *MetricsStore) UpsertTermCounts(terms map[string]int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for term, count := range terms {
		_, err := tx.Exec(`INSERT INTO term_counts (term, count) VALUES (?, ?)
			ON CONFLICT (term) DO UPDATE SET count = MAX(count, excluded.count)`, term, count)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTopTerms retrieves the most frequent terms.
func (s *MetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(
		`SELECT term, count FROM term_counts ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// GetModeCounts sums per-mode counts over a date range (inclusive).
func (s *MetricsStore) GetModeCounts(from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT mode, SUM(count) FROM mode_counts WHERE date >= ? AND date <= ? GROUP BY mode`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var mode string
		var count int64
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, err
		}
		out[mode] = count
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *MetricsStore) Close() error {
	return s.db.Close()
}
