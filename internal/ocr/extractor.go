package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrExtractorUnavailable is returned when the extraction command is not installed.
var ErrExtractorUnavailable = errors.New("text extractor not available")

// ErrNoCommand is returned when no extraction command is configured.
var ErrNoCommand = errors.New("no extractor command configured")

// Extractor extracts text from a PDF document.
type Extractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// CommandExtractor runs an external command with the PDF on stdin and
// reads the text from stdout.
type CommandExtractor struct {
	name string
	args []string
}

// NewCommandExtractor creates an extractor for argv, e.g. ["pdftotext", "-", "-"].
func NewCommandExtractor(argv []string) (*CommandExtractor, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, ErrNoCommand
	}
	return &CommandExtractor{name: argv[0], args: argv[1:]}, nil
}

// Available reports whether the command can be found in PATH.
func (e *CommandExtractor) Available() bool {
	_, err := exec.LookPath(e.name)
	return err == nil
}

// ExtractText implements Extractor.
func (e *CommandExtractor) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	cmd := exec.CommandContext(ctx, e.name, e.args...) //nolint:gosec // the command line comes from the operator's config
	cmd.Stdin = bytes.NewReader(pdf)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrExtractorUnavailable, e.name)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", e.name, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", e.name, err)
	}
	return normalizeText(stdout.String()), nil
}

// normalizeText trims trailing spaces and form feeds and collapses runs of
// blank lines into one.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\f", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
