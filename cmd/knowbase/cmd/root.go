// Package cmd provides the CLI commands for knowbase.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/logging"
	"github.com/Aman-CERP/knowbase/internal/profiling"
	"github.com/Aman-CERP/knowbase/pkg/version"
)

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dataDir    string
	noColor    bool
	debug      bool
}

// Profiling flags.
var (
	profileCPU string
	profileMem string
	profiler   = profiling.NewProfiler()
	cpuCleanup func()
)

var loggingCleanup func()

// NewRootCmd creates the root command for the knowbase CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "knowbase",
		Short: "Knowledge extraction and retrieval over repository snapshots",
		Long: `Knowbase extracts knowledge records from configured repository
snapshots, derives concepts and cross-repository relationships, and
serves hybrid (keyword + semantic) retrieval over the result, both
from the command line and as an MCP server.

Start with 'knowbase init' to write a config, then 'knowbase run'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("knowbase version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "knowbase.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Override the configured data directory")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.knowbase/logs/")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")

	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return startProfilingAndLogging(opts)
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return stopProfilingAndLogging()
	}

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfilingAndLogging(opts *rootOptions) error {
	if opts.debug {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
	}

	if profileCPU != "" {
		cleanup, err := profiler.StartCPU(profileCPU)
		if err != nil {
			return err
		}
		cpuCleanup = cleanup
	}
	return nil
}

func stopProfilingAndLogging() error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
