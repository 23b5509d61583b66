package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"codegraph/internal/config"
	"codegraph/internal/logging"
)

var version = "dev"

var (
	configPath    string
	logLevel      string
	workspaceRoot string

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "codegraph",
		Short: "Builds the call graph reachable from a function",
		Long: `codegraph parses a function, asks a language server where each call
inside it goes and follows the targets until the graph closes. Builds are
stored so they can be listed and printed later, or served to MCP clients.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if workspaceRoot != "" {
				c.WorkspaceRoot = workspaceRoot
			}
			if logLevel != "" {
				c.Log.Level = logLevel
			}
			cfg = c
			logger = logging.New(logging.Config{Level: c.Log.Level, Format: c.Log.Format})
			slog.SetDefault(logger)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default codegraph.yaml, or $CODEGRAPH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&workspaceRoot, "workspace", "w", "", "workspace root handed to language servers")

	rootCmd.AddCommand(buildCmd, serveCmd, showCmd, buildsCmd, doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "codegraph: %v\n", err)
		os.Exit(1)
	}
}
