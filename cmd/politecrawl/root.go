package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/politecrawl/internal/model"
)

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitConfigError = 2
)

// NewRootCmd creates the root command for politecrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "politecrawl",
		Short: "Polite, priority-aware web crawler",
		Long: `politecrawl crawls web sites from a set of seed URLs.

It stays within the seed domains, follows links up to a maximum depth,
visits the most promising URLs first, and is polite to every host:
robots.txt is honored, requests to one domain are spaced out, and
transient failures are retried with exponential backoff.

Each crawled URL produces one record in the configured output
(csv, jsonl, json or sqlite).`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewCleanCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the matching exit code.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit code:
// 0 for success, 2 for configuration errors, 1 for anything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, model.ErrConfig):
		return exitConfigError
	default:
		return exitFatal
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
