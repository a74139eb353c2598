package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry either a Go duration
// string ("1.5s", "2m") or a bare number of seconds (1, 0.5).
// Bare numbers keep older configs such as "request_delay: 1" working.
type Duration struct {
	time.Duration
}

// Seconds builds a Duration from a number of seconds.
func Seconds(s float64) Duration {
	return Duration{Duration: time.Duration(s * float64(time.Second))}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v at line %d", node.Tag, node.Line)
	}

	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q at line %d: %w", raw, node.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
