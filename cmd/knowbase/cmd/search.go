package cmd

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/ui"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var mode string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search extracted concepts with hybrid retrieval: BM25 keyword
ranking fused with semantic similarity. When the embedder is
unavailable, semantic and hybrid requests degrade to keyword-only and
say so.

Examples:
  knowbase search "tool discovery"
  knowbase search "streaming transport" --mode keyword --limit 5
  knowbase search "provider registration" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queryStr := strings.Join(args, " ")

			m, err := search.ParseMode(mode)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			stack, cleanup, err := openQueryStack(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer cleanup()

			results, meta, err := stack.service.Search(cmd.Context(), queryStr, m, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Results []search.Result `json:"results"`
					Meta    search.Meta     `json:"meta"`
				}{results, meta})
			}

			ui.NewRenderer(cmd.OutOrStdout(), opts.noColor).SearchResults(queryStr, results, meta)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "Search mode: keyword, semantic, hybrid")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (0 = config default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}
