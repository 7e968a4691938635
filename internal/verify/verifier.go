// Package verify reconciles the store against its source repositories
// and produces coverage reports. Verification only detects: it never
// re-extracts; remediation is a separate, explicit operation.
package verify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Verifier compares source adapters against provenance records.
type Verifier struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Verifier.
func New(st *store.Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{store: st, logger: logger}
}

// VerifyRepo produces one repository's coverage report. A file counts
// as covered when it has a stored record or a recorded skip reason;
// status is ok only at 100% coverage with matching revisions. The
// conclusion is written back to provenance; entities are never touched.
func (v *Verifier) VerifyRepo(ctx context.Context, adapter source.Adapter) (*kb.CoverageReport, error) {
	repo := adapter.Repo()

	prov, err := v.store.Provenance(ctx, repo)
	if err != nil {
		return nil, err
	}

	files, err := adapter.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	revision, err := adapter.Revision(ctx)
	if err != nil {
		return nil, err
	}

	report := &kb.CoverageReport{
		Repo:          repo,
		FilesInSource: len(files),
	}

	if prov == nil || prov.RecordCountStored == 0 {
		report.Status = kb.ProvenanceMissing
		if err := v.store.MarkProvenanceMissing(ctx, repo, time.Now().UTC()); err != nil {
			return nil, err
		}
		v.logReport(report)
		return report, nil
	}

	report.FilesInStore = prov.RecordCountStored
	report.RevisionMatch = prov.Revision == revision

	covered := prov.RecordCountStored + prov.SkipCount
	if report.FilesInSource > 0 {
		report.CoveragePct = float64(covered) / float64(report.FilesInSource) * 100
		if report.CoveragePct > 100 {
			report.CoveragePct = 100
		}
	} else {
		report.CoveragePct = 100
	}

	switch {
	case !report.RevisionMatch:
		report.Status = kb.ProvenanceStale
	case report.CoveragePct < 100:
		report.Status = kb.ProvenancePartial
	default:
		report.Status = kb.ProvenanceOK
	}

	if err := v.store.UpdateProvenanceStatus(ctx, repo, report.Status, time.Now().UTC()); err != nil {
		return nil, err
	}

	v.logReport(report)
	return report, nil
}

// VerifyAll produces reports for every adapter, in order. Adapter
// failures mark the repository missing rather than aborting the audit.
func (v *Verifier) VerifyAll(ctx context.Context, adapters []source.Adapter) ([]*kb.CoverageReport, error) {
	reports := make([]*kb.CoverageReport, 0, len(adapters))
	for _, a := range adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report, err := v.VerifyRepo(ctx, a)
		if err != nil {
			report = &kb.CoverageReport{Repo: a.Repo(), Status: kb.ProvenanceMissing}
			v.logger.Warn("verification failed",
				slog.String("repo", a.Repo()),
				slog.String("error", err.Error()))
			if mErr := v.store.MarkProvenanceMissing(ctx, a.Repo(), time.Now().UTC()); mErr != nil {
				return nil, mErr
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (v *Verifier) logReport(r *kb.CoverageReport) {
	v.logger.Info("coverage verified",
		slog.String("repo", r.Repo),
		slog.Float64("coverage_pct", r.CoveragePct),
		slog.Bool("revision_match", r.RevisionMatch),
		slog.String("status", string(r.Status)))
}
