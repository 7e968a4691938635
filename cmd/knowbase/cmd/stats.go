package cmd

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/index"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/ui"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Long: `Show entity counts, per-repository provenance, and per-repository
concept summaries with the most frequent tags.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			stack, cleanup, err := openQueryStack(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := stack.service.Stats(cmd.Context())
			if err != nil {
				return err
			}
			summaries := index.Summaries(stack.store.Snapshot())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					*query.StatsReport
					Summaries []index.RepoSummary `json:"summaries,omitempty"`
				}{report, summaries})
			}

			renderer := ui.NewRenderer(cmd.OutOrStdout(), opts.noColor)
			renderer.Stats(report)
			renderer.RepoSummaries(summaries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
