package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched in the current directory.
const DefaultConfigFile = "politecrawl.yaml"

// homeConfigFile is the dot-file searched in the user's home directory.
const homeConfigFile = ".politecrawl.yaml"

// LoadFile reads a YAML configuration file on top of the defaults.
// Keys absent from the file keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := decodeFileInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverlay merges a second YAML file over cfg.
// Nested sections merge field by field, lists are replaced, and maps gain
// or overwrite keys. A missing overlay file is not an error.
func ApplyOverlay(cfg *Config, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := decodeFileInto(path, cfg); err != nil {
		return false, err
	}
	return true, nil
}

func decodeFileInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return withDetail(ErrConfigNotFound, "%s", path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := decode(bytes.NewReader(data), cfg); err != nil {
		return withDetail(ErrMalformedConfig, "%s: %v", path, err)
	}
	return nil
}

func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// FindConfigFile searches for the configuration file in the following order:
//  1. configPath, when given (returned only if it exists)
//  2. politecrawl.yaml in the current directory
//  3. config.yaml in the XDG config directory
//  4. .politecrawl.yaml in the user's home directory
//
// It returns an empty string when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, homeConfigFile))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
