package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/politecrawl/internal/log"
)

// cleanTargets are the generated entries removed by clean, relative to output_dir.
var cleanTargets = []string{"images", "pdfs", "captcha_images", "temp_config.yaml"}

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated crawl data",
		Long: `Clean removes generated data under output_dir:

  images/, pdfs/, captcha_images/ and temp_config.yaml

Result files, the SQLite database and CAPTCHA snapshots are kept.

Examples:
  # Remove generated data under the default output directory
  politecrawl clean

  # Show what would be removed
  politecrawl clean --dry-run`,
		Args: cobra.NoArgs,
		RunE: runCleanCmd,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "List what would be removed without removing it")

	return cmd
}

// runCleanCmd executes the clean command.
func runCleanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	logger.Debug("cleaning generated data", "output_dir", cfg.OutputDir, "dry_run", dryRun)

	removed, err := cleanData(cfg.OutputDir, dryRun)
	out := cmd.OutOrStdout()
	for _, p := range removed {
		if dryRun {
			fmt.Fprintf(out, "Would remove: %s\n", p)
		} else {
			fmt.Fprintf(out, "Removed: %s\n", p)
		}
	}
	if err != nil {
		logger.Warn("some entries could not be removed", "error", err)
		return err
	}
	if len(removed) == 0 {
		fmt.Fprintln(out, "Nothing to clean.")
	}
	return nil
}

// cleanData removes the clean targets that exist under dir and returns
// their paths. Missing targets are skipped.
func cleanData(dir string, dryRun bool) ([]string, error) {
	var (
		removed []string
		errs    []error
	)
	for _, name := range cleanTargets {
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(path); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
				continue
			}
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
