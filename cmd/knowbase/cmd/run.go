package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/extract"
	"github.com/Aman-CERP/knowbase/internal/pipeline"
	"github.com/Aman-CERP/knowbase/internal/preflight"
	"github.com/Aman-CERP/knowbase/internal/process"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/ui"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var skipCheck bool
	var repos []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract and process the configured repositories",
		Long: `Run the extraction pipeline over the configured repository
snapshots: list and read files, derive records, concepts, and
relationships, and commit the result to the store. Repositories whose
revision and content are unchanged are skipped. With --repo only the
named repositories are extracted; the cross-repository join still sees
everything already in the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), cmd, opts, skipCheck, repos)
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().StringSliceVarP(&repos, "repo", "r", nil, "Only extract the named repositories (repeatable)")
	return cmd
}

func runPipeline(ctx context.Context, cmd *cobra.Command, opts *rootOptions, skipCheck bool, repos []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("no repositories configured in %s", opts.configPath)
	}

	logger := slog.Default()
	adapters := buildAdapters(cfg)
	if len(repos) > 0 {
		adapters, err = filterAdapters(adapters, repos)
		if err != nil {
			return err
		}
	}

	if !skipCheck && preflight.NeedsCheck(cfg.DataDir) {
		embedder, err := embed.NewFromConfig(cfg.Embeddings)
		if err != nil {
			return err
		}
		checker := preflight.New(
			preflight.WithEmbedder(embedder),
			preflight.WithAdapters(adapters),
			preflight.WithOutput(cmd.ErrOrStderr()),
		)
		results := checker.RunAll(ctx, cfg.DataDir)
		if embedder != nil {
			_ = embedder.Close()
		}
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(cfg.DataDir); err != nil {
			logger.Debug("failed to write preflight marker", slog.String("error", err.Error()))
		}
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	extractor := extract.New(extract.Options{
		MaxFileBytes: cfg.Extraction.MaxFileBytes,
		SummaryChars: cfg.Extraction.SummaryChars,
	}, logger)
	processor := process.New(process.Options{
		Vocabulary:      cfg.Processing.Vocabulary,
		MinSharedTags:   cfg.Processing.MinSharedTags,
		PatternMinRepos: cfg.Processing.PatternMinRepos,
	}, logger)

	runner := pipeline.New(extractor, processor, st, cfg.Performance.Workers, logger)
	report, err := runner.Run(ctx, adapters)
	if err != nil {
		return err
	}

	ui.NewRenderer(cmd.OutOrStdout(), opts.noColor).RunReport(report)
	return nil
}
