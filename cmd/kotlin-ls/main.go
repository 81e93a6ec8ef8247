package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global flags shared by all subcommands.
var (
	flagLogFile  string
	flagLogLevel string
)

// errUsage marks command-line errors so main exits with status 2.
var errUsage = errors.New("usage error")

func main() {
	rootCmd := &cobra.Command{
		Use:   "kotlin-ls",
		Short: "Language server frontend for the Kotlin analyzer",
		Long: `kotlin-ls is a native Language Server Protocol frontend for Kotlin.
It owns the editor connection and supervises a JVM analyzer subprocess
that performs the semantic work.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unexpected arguments: %v", errUsage, args)
			}
			return nil
		},
		RunE: runLSP,
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to PATH instead of stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: off|error|warn|info|debug|trace")

	rootCmd.AddCommand(newLSPCommand())
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
