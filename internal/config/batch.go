package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BatchFile is the on-disk layout of a batch job list.
type BatchFile struct {
	Jobs []Job `yaml:"batch_urls"`
}

// Job is one batch entry. Jobs with a lower Priority run first.
type Job struct {
	URL         string `yaml:"url"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description"`

	// CustomConfig is merged over the global configuration for this job only.
	CustomConfig yaml.Node `yaml:"custom_config"`
}

// Name returns a short label for logs and summaries.
func (j Job) Name() string {
	if j.Description != "" {
		return j.Description
	}
	return j.URL
}

// LoadBatchFile reads a batch file and returns its jobs ordered by priority.
// Jobs sharing a priority keep their file order.
func LoadBatchFile(path string) ([]Job, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided batch path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, withDetail(ErrConfigNotFound, "%s", path)
		}
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}

	var bf BatchFile
	if err := decode(bytes.NewReader(data), &bf); err != nil {
		return nil, withDetail(ErrMalformedConfig, "%s: %v", path, err)
	}

	jobs := make([]Job, 0, len(bf.Jobs))
	for _, j := range bf.Jobs {
		j.URL = strings.TrimSpace(j.URL)
		if j.URL == "" {
			continue
		}
		jobs = append(jobs, j)
	}
	if len(jobs) == 0 {
		return nil, withDetail(ErrEmptyBatch, "%s", path)
	}

	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].Priority < jobs[b].Priority
	})
	return jobs, nil
}

// Resolve derives the job's configuration from base. The base is not modified.
func (j Job) Resolve(base *Config) (*Config, error) {
	cfg := base.Clone()
	if j.CustomConfig.Kind != 0 {
		if err := j.CustomConfig.Decode(cfg); err != nil {
			return nil, withDetail(ErrMalformedConfig, "custom_config for %s: %v", j.URL, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.URL, err)
	}
	return cfg, nil
}
