package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/knowbase/internal/config"
	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/source"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/telemetry"
)

// loadConfig loads the config file named by the root flags and applies
// the data-dir override.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	return cfg, nil
}

// buildAdapters creates one filesystem adapter per configured
// repository snapshot.
func buildAdapters(cfg *config.Config) []source.Adapter {
	adapters := make([]source.Adapter, 0, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		adapters = append(adapters, source.NewFSAdapter(r.Name, r.Root,
			source.WithFilters(r.Include, r.Exclude),
			source.WithGitignore(true),
			source.WithReadTimeout(cfg.Extraction.ReadTimeout.Std()),
		))
	}
	return adapters
}

// filterAdapters keeps only the named repositories, erroring on
// unknown names.
func filterAdapters(adapters []source.Adapter, names []string) ([]source.Adapter, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	var filtered []source.Adapter
	for _, a := range adapters {
		if wanted[a.Repo()] {
			filtered = append(filtered, a)
			delete(wanted, a.Repo())
		}
	}
	for name := range wanted {
		return nil, fmt.Errorf("unknown repository %q", name)
	}
	return filtered, nil
}

// queryStack bundles everything a read-side command needs.
type queryStack struct {
	store    *store.Store
	embedder embed.Embedder
	service  *query.Service
	metrics  *telemetry.QueryMetrics
	adapters []source.Adapter
}

// openQueryStack opens the store, rebuilds the retrieval indexes from
// the current snapshot, and wires the query service. Call close when
// done.
func openQueryStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*queryStack, func(), error) {
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := embed.NewFromConfig(cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	dims := cfg.Embeddings.Dimensions
	if embedder != nil {
		dims = embedder.Dimensions()
	}

	keyword, err := index.NewKeywordIndex(filepath.Join(cfg.IndexPath(), "keyword.bleve"))
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	indexer := index.New(keyword, index.NewVectorIndex(dims), embedder, logger)
	if _, err := indexer.Rebuild(ctx, st.Snapshot()); err != nil {
		_ = keyword.Close()
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to build indexes: %w", err)
	}

	engine := search.NewEngine(indexer, embedder, search.Options{
		KeywordWeight:  cfg.Search.KeywordWeight,
		SemanticWeight: cfg.Search.SemanticWeight,
		RRFConstant:    cfg.Search.RRFConstant,
	}, logger)

	svc, err := query.NewService(st, engine, query.Limits{
		Default: cfg.Search.DefaultLimit,
		Hard:    cfg.Search.MaxLimit,
	}, logger)
	if err != nil {
		_ = keyword.Close()
		_ = st.Close()
		return nil, nil, err
	}

	stack := &queryStack{
		store:    st,
		embedder: embedder,
		service:  svc,
		adapters: buildAdapters(cfg),
	}

	// Query telemetry persists alongside the store. A metrics failure
	// never blocks serving.
	var metricsStore *telemetry.MetricsStore
	if ms, err := telemetry.OpenMetricsStore(filepath.Join(cfg.DataDir, "metrics.db")); err == nil {
		metricsStore = ms
		stack.metrics = telemetry.NewQueryMetrics(ms)
		svc.SetMetrics(stack.metrics)
	} else {
		logger.Warn("query metrics disabled", slog.String("error", err.Error()))
	}

	cleanup := func() {
		if stack.metrics != nil {
			_ = stack.metrics.Close()
		}
		if metricsStore != nil {
			_ = metricsStore.Close()
		}
		_ = keyword.Close()
		if embedder != nil {
			_ = embedder.Close()
		}
		_ = st.Close()
	}
	return stack, cleanup, nil
}
