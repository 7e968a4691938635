package cmd

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/query"
	"github.com/Aman-CERP/knowbase/internal/ui"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var repo, conceptType, tag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List concepts, optionally filtered",
		Long: `List concepts in the knowledge base, filtered by repository,
concept type, or tag. Filters combine with AND.`,
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

			concepts, err := stack.service.List(cmd.Context(), query.ListFilter{
				Repo: repo,
				Type: kb.ConceptType(conceptType),
				Tag:  tag,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(concepts)
			}

			ui.NewRenderer(cmd.OutOrStdout(), opts.noColor).Concepts(concepts)
			return nil
		},
	}

	cmd.Flags().StringVarP(&repo, "repo", "r", "", "Filter by source repository")
	cmd.Flags().StringVarP(&conceptType, "type", "t", "", "Filter by concept type")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
