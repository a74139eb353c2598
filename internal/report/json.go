package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// summaryJSON adds derived fields to a RunSummary.
type summaryJSON struct {
	*model.RunSummary
	Total      int   `json:"total"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}

// WriteSummary outputs the run summary in JSON format.
func (w *JSONWriter) WriteSummary(s *model.RunSummary) (int, error) {
	return w.writeJSON(summaryJSON{
		RunSummary: s,
		Total:      s.Total(),
		Failed:     failures(s),
		DurationMS: s.Duration().Milliseconds(),
	})
}

// statsJSON adds the crawl span to Stats.
type statsJSON struct {
	*database.Stats
	DurationMS int64 `json:"duration_ms"`
}

// WriteStats outputs database statistics in JSON format.
func (w *JSONWriter) WriteStats(st *database.Stats) (int, error) {
	return w.writeJSON(statsJSON{Stats: st, DurationMS: st.Duration().Milliseconds()})
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
