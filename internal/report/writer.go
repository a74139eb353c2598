package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

// Report formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Writer defines the interface for report output.
type Writer interface {
	// WriteSummary outputs the summary of one crawl run.
	// Returns the number of bytes written and any error encountered.
	WriteSummary(summary *model.RunSummary) (int, error)

	// WriteStats outputs aggregate statistics read from the database.
	WriteStats(stats *database.Stats) (int, error)
}

// NewWriter returns the writer for format, writing to output.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "simple":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a report file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteSummary outputs the summary to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) WriteSummary(summary *model.RunSummary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteStats outputs the stats to all configured Writers.
func (m *MultiWriter) WriteStats(stats *database.Stats) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteStats(stats)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// runState describes how a run ended.
func runState(s *model.RunSummary) string {
	switch {
	case s.Error != "":
		return "Error - " + s.Error
	case s.Cancelled:
		return "Cancelled (partial results)"
	default:
		return "Complete"
	}
}

// failures counts records whose status is a failure.
func failures(s *model.RunSummary) int {
	n := 0
	for _, st := range model.AllStatuses {
		if st.IsFailure() {
			n += s.Count(st)
		}
	}
	return n
}

// truncateString shortens s to maxLen bytes with a trailing ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
