package cmd

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/ui"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one entity by id",
		Long: `Look up a concept, relationship, principle, or pattern by its id
and print it, including related edges for concepts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			stack, cleanup, err := openQueryStack(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer cleanup()

			entity, err := stack.service.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entity)
			}

			ui.NewRenderer(cmd.OutOrStdout(), opts.noColor).Entity(entity)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
