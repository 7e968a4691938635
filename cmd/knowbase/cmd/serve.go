package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/logging"
	mcpserver "github.com/Aman-CERP/knowbase/internal/mcp"
	"github.com/Aman-CERP/knowbase/internal/verify"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Serve the knowledge base over the Model Context Protocol on stdio.
Stdout carries JSON-RPC exclusively, so all diagnostics go to the log
file. Point your MCP client at 'knowbase serve'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			// Stdout belongs to the protocol, so log to file only.
			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.Logging.Level
			logCfg.WriteToStderr = false
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				logger = slog.Default()
			} else {
				defer cleanup()
			}

			stack, closeStack, err := openQueryStack(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStack()

			srv, err := mcpserver.NewServer(
				stack.service,
				verify.New(stack.store, logger),
				stack.adapters,
				stack.embedder,
				logger,
			)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "Transport to serve on (stdio)")
	return cmd
}
