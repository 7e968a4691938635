// Package pipeline orchestrates the full ingestion run: per-repository
// extract -> process -> commit chains run as independent workers, then
// a join barrier runs the cross-repository pass once every repository
// in the batch has committed.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/process"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// RepoRun summarizes one repository's pass.
type RepoRun struct {
	Repo      string `json:"repo"`
	Revision  string `json:"revision"`
	Unchanged bool   `json:"unchanged,omitempty"`
	Records   int    `json:"records"`
	Skips     int    `json:"skips"`
	Concepts  int    `json:"concepts"`
	Edges     int    `json:"edges"`
	Errors    int    `json:"errors"`
}

// Report summarizes one full run.
type Report struct {
	RunID      string        `json:"run_id"`
	Repos      []RepoRun     `json:"repos"`
	Principles int           `json:"principles"`
	Patterns   int           `json:"patterns"`
	Duration   time.Duration `json:"duration"`
}

// Runner wires adapters, extractor, processor, and store together.
type Runner struct {
	extractor *extract.Extractor
	processor *process.Processor
	store     *store.Store
	workers   int
	retry     kberrors.RetryConfig
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRetryConfig overrides the source retry policy.
func WithRetryConfig(cfg kberrors.RetryConfig) Option {
	return func(r *Runner) { r.retry = cfg }
}

// New creates a Runner. workers bounds how many repositories run
// concurrently.
func New(ex *extract.Extractor, pr *process.Processor, st *store.Store, workers int, logger *slog.Logger, opts ...Option) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		extractor: ex,
		processor: pr,
		store:     st,
		workers:   workers,
		retry:     kberrors.DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the batch over all adapters. Repositories proceed
// independently; one repository's source failure does not abort the
// others. The cross-repository pass runs only after every successful
// repository has committed.
func (r *Runner) Run(ctx context.Context, adapters []source.Adapter) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	r.logger.Info("run started",
		slog.String("run_id", report.RunID),
		slog.Int("repos", len(adapters)))

	var mu sync.Mutex
	runs := make([]RepoRun, len(adapters))
	results := make([]*process.RepoResult, 0, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, adapter := range adapters {
		g.Go(func() error {
			run, result, err := r.runRepo(gctx, adapter)
			if err != nil {
				// Source failures are recorded, never fatal to the batch.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("repository failed",
					slog.String("repo", adapter.Repo()),
					slog.String("error", err.Error()))
				if kberrors.GetCode(err) == kberrors.ErrCodeSourceUnavailable {
					if mErr := r.store.MarkProvenanceMissing(gctx, adapter.Repo(), time.Now().UTC()); mErr != nil {
						r.logger.Warn("failed to record missing provenance",
							slog.String("repo", adapter.Repo()),
							slog.String("error", mErr.Error()))
					}
				}
				run = RepoRun{Repo: adapter.Repo(), Errors: 1}
			}
			mu.Lock()
			runs[i] = run
			if result != nil {
				results = append(results, result)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report.Repos = runs

	// Join barrier: every per-repository pass has committed. The
	// cross-repository pass needs the full concept population, so
	// previously committed repositories rejoin from the store.
	joined, err := r.joinAll(ctx, results)
	if err != nil {
		return nil, err
	}
	report.Principles = joined.principles
	report.Patterns = joined.patterns

	report.Duration = time.Since(start)
	r.logger.Info("run finished",
		slog.String("run_id", report.RunID),
		slog.Duration("duration", report.Duration),
		slog.Int("principles", report.Principles))
	return report, nil
}

// runRepo runs one repository chain: extract with bounded retry,
// process, commit. Unchanged revisions (identical content hashes)
// short-circuit without rewriting entities.
func (r *Runner) runRepo(ctx context.Context, adapter source.Adapter) (RepoRun, *process.RepoResult, error) {
	repo := adapter.Repo()

	var res *extract.Result
	err := kberrors.Retry(ctx, r.retry, func() error {
		var exErr error
		res, exErr = r.extractor.Extract(ctx, adapter)
		if exErr != nil {
			return kberrors.SourceUnavailable(repo, exErr)
		}
		return nil
	})
	if err != nil {
		return RepoRun{}, nil, err
	}

	run := RepoRun{
		Repo:     repo,
		Revision: res.Revision,
		Records:  len(res.Records),
		Skips:    len(res.Skips),
	}

	if unchanged, err := r.isUnchanged(ctx, res); err != nil {
		return RepoRun{}, nil, err
	} else if unchanged {
		run.Unchanged = true
		result := r.processor.ProcessRepo(res.Records)
		run.Concepts = len(result.Concepts)
		run.Edges = len(result.Relationships)
		return run, result, nil
	}

	result := r.processor.ProcessRepo(res.Records)
	run.Concepts = len(result.Concepts)
	run.Edges = len(result.Relationships)
	run.Errors = len(result.Errors)

	err = r.store.ReplaceRepository(ctx, &store.RepoBatch{
		Repo:      repo,
		Revision:  res.Revision,
		Records:   res.Records,
		Skips:     res.Skips,
		FilesSeen: res.FilesSeen,
		Entities: &kb.EntitySet{
			Concepts:      result.Concepts,
			Relationships: result.Relationships,
		},
	})
	if err != nil {
		return RepoRun{}, nil, err
	}
	return run, result, nil
}

// isUnchanged reports whether the extraction matches the stored
// revision file-for-file by content hash.
func (r *Runner) isUnchanged(ctx context.Context, res *extract.Result) (bool, error) {
	prov, err := r.store.Provenance(ctx, res.Repo)
	if err != nil {
		return false, err
	}
	if prov == nil || prov.Revision != res.Revision {
		return false, nil
	}
	stored, err := r.store.RawRecordHashes(ctx, res.Repo, res.Revision)
	if err != nil {
		return false, err
	}
	if len(stored) != len(res.Records) {
		return false, nil
	}
	for _, rec := range res.Records {
		if stored[rec.Path] != rec.ContentHash {
			return false, nil
		}
	}
	return true, nil
}

type joinCounts struct {
	principles int
	patterns   int
}

// joinAll runs the cross-repository pass over the union of this run's
// results and repositories already in the store, then replaces the
// cross partition.
func (r *Runner) joinAll(ctx context.Context, fresh []*process.RepoResult) (joinCounts, error) {
	seen := make(map[string]bool, len(fresh))
	all := make([]*process.RepoResult, 0, len(fresh))
	for _, res := range fresh {
		seen[res.Repo] = true
		all = append(all, res)
	}

	// Repositories committed by earlier runs still participate in
	// equivalence and promotion.
	snap := r.store.Snapshot()
	byRepo := make(map[string]*process.RepoResult)
	for _, c := range snap.Concepts() {
		if seen[c.SourceRepo] {
			continue
		}
		res, ok := byRepo[c.SourceRepo]
		if !ok {
			res = &process.RepoResult{Repo: c.SourceRepo}
			byRepo[c.SourceRepo] = res
			all = append(all, res)
		}
		res.Concepts = append(res.Concepts, c)
	}
	for _, e := range snap.Relationships() {
		if e.Kind == kb.RelationEquivalentTo {
			continue
		}
		if from := snap.ConceptByID(e.FromConceptID); from != nil {
			if res, ok := byRepo[from.SourceRepo]; ok {
				res.Relationships = append(res.Relationships, e)
			}
		}
	}

	joined := r.processor.Join(all)
	err := r.store.ReplaceCrossEntities(ctx, &kb.EntitySet{
		Relationships: joined.Relationships,
		Principles:    joined.Principles,
		Patterns:      joined.Patterns,
	})
	if err != nil {
		return joinCounts{}, err
	}
	return joinCounts{
		principles: len(joined.Principles),
		patterns:   len(joined.Patterns),
	}, nil
}
