// Package extract turns source files into raw knowledge records.
// Extraction is idempotent: re-running over an unchanged snapshot
// produces records with identical keys and content hashes.
package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/source"
)

// Skip records one file the extractor could not turn into a record.
// Skips are first-class output: the verifier counts them.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipBinary    = "binary"
	SkipEmpty     = "empty"
	SkipTimeout   = "timeout"
	SkipReadError = "read_error"
)

// Result is everything extracted from one repository snapshot.
type Result struct {
	Repo      string
	Revision  string
	Records   []*kb.RawRecord
	Skips     []Skip
	FilesSeen int
}

// Options tunes extraction.
type Options struct {
	// MaxFileBytes is the content ceiling. Larger files are truncated
	// and flagged, never rejected.
	MaxFileBytes int
	// SummaryChars bounds the extracted summary.
	SummaryChars int
}

// DefaultOptions mirror the config defaults.
func DefaultOptions() Options {
	return Options{MaxFileBytes: 1 << 20, SummaryChars: 400}
}

// Extractor reads files through a source adapter and produces records.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Extractor.
func New(opts Options, logger *slog.Logger) *Extractor {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultOptions().MaxFileBytes
	}
	if opts.SummaryChars <= 0 {
		opts.SummaryChars = DefaultOptions().SummaryChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// Extract processes every candidate file in the adapter's snapshot.
// Individual file failures become Skips; only listing or revision
// failures abort the run.
func (e *Extractor) Extract(ctx context.Context, adapter source.Adapter) (*Result, error) {
	repo := adapter.Repo()

	revision, err := adapter.Revision(ctx)
	if err != nil {
		return nil, err
	}
	files, err := adapter.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Repo: repo, Revision: revision, FilesSeen: len(files)}
	now := time.Now().UTC()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, skip := e.extractOne(ctx, adapter, f, revision, now)
		if skip != nil {
			res.Skips = append(res.Skips, *skip)
			e.logger.Debug("file skipped",
				slog.String("repo", repo),
				slog.String("path", skip.Path),
				slog.String("reason", skip.Reason))
			continue
		}
		res.Records = append(res.Records, rec)
	}

	e.logger.Info("extraction complete",
		slog.String("repo", repo),
		slog.String("revision", revision),
		slog.Int("records", len(res.Records)),
		slog.Int("skips", len(res.Skips)))
	return res, nil
}

func (e *Extractor) extractOne(ctx context.Context, adapter source.Adapter, f source.FileInfo, revision string, now time.Time) (*kb.RawRecord, *Skip) {
	data, err := adapter.Read(ctx, f.Path)
	if err != nil {
		reason := SkipReadError
		if errors.Is(err, source.ErrTimeout) {
			reason = SkipTimeout
		}
		return nil, &Skip{Path: f.Path, Reason: reason}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &Skip{Path: f.Path, Reason: SkipEmpty}
	}
	if isBinary(data) {
		return nil, &Skip{Path: f.Path, Reason: SkipBinary}
	}

	truncated := false
	if len(data) > e.opts.MaxFileBytes {
		data = truncateUTF8(data, e.opts.MaxFileBytes)
		truncated = true
	}

	text := string(data)
	title := ExtractTitle(text, f.Path)
	summary := ExtractSummary(text, e.opts.SummaryChars)

	if f.ContentType == kb.ContentTypeCode {
		if doc := goDocSummary(ctx, f.Path, data, e.opts.SummaryChars); doc != "" {
			summary = doc
		}
	}

	return &kb.RawRecord{
		SourceRepo:  adapter.Repo(),
		Revision:    revision,
		Path:        f.Path,
		ContentType: f.ContentType,
		Title:       title,
		Summary:     summary,
		RawText:     text,
		ContentHash: kb.ContentHash(data),
		Truncated:   truncated,
		ExtractedAt: now,
	}, nil
}

// isBinary sniffs the first 8 KiB for NUL bytes.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// truncateUTF8 cuts data at limit without splitting a rune.
func truncateUTF8(data []byte, limit int) []byte {
	cut := data[:limit]
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut
}
