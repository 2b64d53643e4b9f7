// Package cmd provides the CLI commands for onechelp.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onec-help/onechelp/internal/config"
	"github.com/onec-help/onechelp/internal/logging"
	"github.com/onec-help/onechelp/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the onechelp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onechelp",
		Short: "1C:Enterprise syntax-help MCP search server",
		Long: `onechelp serves 1C:Enterprise platform documentation over the
Model Context Protocol. It parses the proprietary .hbk help archive
into a local search index and answers syntax lookups from AI coding
assistants over JSON-RPC.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("onechelp version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level := "info"
	if debugMode {
		level = "debug"
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("cannot set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig loads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if defaultPath := config.DefaultConfigPath(); fileExists(defaultPath) {
			path = defaultPath
		}
	}
	return config.Load(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
