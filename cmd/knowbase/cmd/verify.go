package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/kb"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/ui"
	"github.com/Aman-CERP/knowbase/internal/verify"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify [repo...]",
		Short: "Check store coverage against the sources",
		Long: `Compare what the store holds against what the configured sources
currently contain: file coverage and revision match per repository.
With no arguments every configured repository is verified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			adapters := buildAdapters(cfg)
			if len(args) > 0 {
				adapters, err = filterAdapters(adapters, args)
				if err != nil {
					return err
				}
			}
			if len(adapters) == 0 {
				return fmt.Errorf("no repositories to verify")
			}

			st, err := store.Open(cfg.StorePath())
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			reports, err := verify.New(st, slog.Default()).VerifyAll(cmd.Context(), adapters)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}

			ui.NewRenderer(cmd.OutOrStdout(), opts.noColor).Coverage(reports)

			for _, r := range reports {
				if r.Status == kb.ProvenanceStale {
					return fmt.Errorf("repository %q is stale, run 'knowbase run'", r.Repo)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
