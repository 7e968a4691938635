package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/preflight"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run pre-flight system checks",
		Long: `Check that the system can run: disk space, write permissions, file
descriptor limits, embedder availability, and source reachability.
Embedder and source problems are warnings (the system degrades);
everything else must pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			embedder, err := embed.NewFromConfig(cfg.Embeddings)
			if err != nil {
				return err
			}
			if embedder != nil {
				defer func() { _ = embedder.Close() }()
			}

			checker := preflight.New(
				preflight.WithEmbedder(embedder),
				preflight.WithAdapters(buildAdapters(cfg)),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), cfg.DataDir)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(cfg.DataDir)
				return fmt.Errorf("system check failed")
			}
			if err := preflight.MarkPassed(cfg.DataDir); err != nil {
				return fmt.Errorf("failed to record check result: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks too")
	return cmd
}
