package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsieve/docsieve/cmd/docsieve/commands"
	"github.com/docsieve/docsieve/logger"
)

var rootCmd = &cobra.Command{
	Use:   "docsieve",
	Short: "docsieve - Multi-step document extraction driven by language models",
	Long: `docsieve - Multi-step document extraction driven by language models.

docsieve runs a configurable sequence of prompt steps against a set of
documents, gates steps on answers to cheap precheck questions, caches
every model response, and accumulates named answers into CSV/JSON output.

Available commands:
  run     - Process documents through the configured steps
  cache   - Inspect or clear the response cache
  version - Show version information

Examples:
  docsieve run -c extraction.csv           # Run with a configuration file
  docsieve run -c extraction.csv 38100000  # Run a single document
  docsieve cache stats -d responses.db     # Show cached response count`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-log")
		errorFile, _ := cmd.Flags().GetString("error-log")
		if err := logger.InitializeWithErrorFile(jsonOutput, errorFile); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-log", false, "Emit structured JSON log output")
	rootCmd.PersistentFlags().String("error-log", "", "Append warnings and errors to this file as JSON")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.CacheCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
