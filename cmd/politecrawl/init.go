package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/politecrawl/internal/config"
)

//go:embed templates/politecrawl.yaml templates/temp_config.yaml
var configTemplates embed.FS

const (
	configTemplate  = "templates/politecrawl.yaml"
	overlayTemplate = "templates/temp_config.yaml"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a politecrawl configuration file",
		Long: `Init writes a configuration file with every option and its default value.

With --temp it writes the temporary overlay instead: a short file merged
over the main configuration by "politecrawl run" until "politecrawl clean"
removes it.

Examples:
  # Create politecrawl.yaml in the current directory
  politecrawl init

  # Create the config file at a specific path
  politecrawl init -o myconfig.yaml

  # Create data/temp_config.yaml
  politecrawl init --temp

  # Force overwrite existing file
  politecrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().Bool("temp", false,
		"Write the temporary overlay (default path "+config.DefaultTempConfigPath+")")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	temp, err := cmd.Flags().GetBool("temp")
	if err != nil {
		return err
	}

	template := configTemplate
	if temp {
		template = overlayTemplate
		if !cmd.Flags().Changed("output") {
			outputPath = config.DefaultTempConfigPath
		}
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplates.ReadFile(template)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	if temp {
		fmt.Fprintln(out, "\nThe overlay is applied by \"politecrawl run\" until \"politecrawl clean\" removes it.")
		return nil
	}
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Crawl depth, concurrency and request delay")
	fmt.Fprintln(out, "  - Path and pattern filters")
	fmt.Fprintln(out, "  - Output format and CAPTCHA handling")
	return nil
}
