package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/log"
)

// addConfigFlags registers the flags every config-reading command shares.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: politecrawl.yaml, then the XDG config dir, then ~/.politecrawl.yaml)")
	cmd.Flags().String("overlay", config.DefaultTempConfigPath,
		"Temporary overlay merged over the configuration when present")
}

// loadConfig resolves the configuration of a command: defaults, then the
// config file, then the overlay. It does not validate.
//
// An explicitly named config file that does not exist is an error; without
// --config a missing file means defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	overlay, err := cmd.Flags().GetString("overlay")
	if err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if path := config.FindConfigFile(configPath); path != "" {
		cfg, err = config.LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
	}

	if overlay != "" {
		if _, err := config.ApplyOverlay(cfg, overlay); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loggerOptions maps the log section and the verbose flag to logger options.
func loggerOptions(cmd *cobra.Command, cfg *config.Config) log.Options {
	return log.Options{
		Verbose:    getVerboseFlag(cmd),
		JSON:       cfg.Log.JSON,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
}
