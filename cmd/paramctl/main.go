package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/cmd/paramctl/commands"
	"github.com/systmms/paramctl/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		region  string
		profile string
		noColor bool
		debug   bool
		quiet   bool
	)

	// Create config placeholder
	cfg := &commands.Config{}

	rootCmd := &cobra.Command{
		Use:   "paramctl",
		Short: "Declarative AWS SSM Parameter Store management",
		Long: `paramctl reconciles YAML parameter files against AWS SSM Parameter Store,
with KMS-encrypted secure values and templated inputs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)
			logger.SetQuiet(quiet)

			// Update config with parsed values
			cfg.Region = region
			cfg.Profile = profile
			cfg.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (defaults to the shared config)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS shared config profile")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress informational output")

	// Add commands
	rootCmd.AddCommand(
		commands.NewPushCommand(cfg),
		commands.NewDiffCommand(cfg),
		commands.NewDeleteCommand(cfg),
		commands.NewDownloadCommand(cfg),
		commands.NewEncryptCommand(cfg),
		commands.NewDecryptCommand(cfg),
		commands.NewLoginCommand(cfg),
	)

	return rootCmd.Execute()
}
