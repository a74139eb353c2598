package output

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/politecrawl/internal/model"
)

// csvHeader is the column order of CSV output.
var csvHeader = []string{
	"run_id", "url", "final_url", "domain", "status", "http_status", "depth",
	"discovered_from", "priority", "retry_count", "payload_kind", "content_type",
	"title", "snippet", "links", "anomalies", "content_hash", "text", "reference",
	"pdf_info", "error", "fetched_at", "duration_ms",
}

// fileSink holds the buffered file shared by the file backends.
type fileSink struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func openFile(path string) (fileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fileSink{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // path comes from config
	if err != nil {
		return fileSink{}, fmt.Errorf("failed to create output file: %w", err)
	}
	return fileSink{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// Path implements Pather.
func (s *fileSink) Path() string {
	return s.path
}

func (s *fileSink) close() error {
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, closeErr)
	}
	return nil
}

// CSVSink writes one row per record with a header row.
type CSVSink struct {
	fileSink
	cw *csv.Writer
}

// NewCSVSink creates the CSV file at path and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	fs, err := openFile(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSink{fileSink: fs, cw: csv.NewWriter(fs.w)}
	if err := s.cw.Write(csvHeader); err != nil {
		_ = fs.f.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return s, nil
}

// Write implements Sink. Lists are space separated and PDF info is
// embedded as JSON.
func (s *CSVSink) Write(_ context.Context, r *model.FetchRecord) error {
	pdfInfo := ""
	if len(r.PDFInfo) > 0 {
		b, err := json.Marshal(r.PDFInfo)
		if err != nil {
			return fmt.Errorf("failed to encode pdf info: %w", err)
		}
		pdfInfo = string(b)
	}
	row := []string{
		r.RunID,
		r.URL,
		r.FinalURL,
		r.Domain,
		string(r.Status),
		strconv.Itoa(r.HTTPStatus),
		strconv.Itoa(r.Depth),
		r.DiscoveredFrom,
		strconv.Itoa(r.Priority),
		strconv.Itoa(r.RetryCount),
		string(r.PayloadKind),
		r.ContentType,
		r.Title,
		r.Snippet,
		strings.Join(r.Links, " "),
		strings.Join(r.Anomalies, " "),
		r.ContentHash,
		r.Text,
		r.Reference,
		pdfInfo,
		r.Error,
		r.FetchedAt.UTC().Format(time.RFC3339Nano),
		strconv.FormatInt(r.DurationMS, 10),
	}
	if err := s.cw.Write(row); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	s.cw.Flush()
	return s.cw.Error()
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	s.cw.Flush()
	if err := s.cw.Error(); err != nil {
		_ = s.fileSink.close()
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return s.fileSink.close()
}

// JSONLSink writes one JSON object per line.
type JSONLSink struct {
	fileSink
	enc *json.Encoder
}

// NewJSONLSink creates the JSON Lines file at path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	fs, err := openFile(path)
	if err != nil {
		return nil, err
	}
	enc := json.NewEncoder(fs.w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{fileSink: fs, enc: enc}, nil
}

// Write implements Sink.
func (s *JSONLSink) Write(_ context.Context, r *model.FetchRecord) error {
	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write jsonl record: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	return s.fileSink.close()
}

// JSONSink writes an indented JSON array of records. The array is
// closed by Close, so the file is only valid JSON after Close.
type JSONSink struct {
	fileSink
	count int
}

// NewJSONSink creates the JSON file at path.
func NewJSONSink(path string) (*JSONSink, error) {
	fs, err := openFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := fs.w.WriteString("["); err != nil {
		_ = fs.f.Close()
		return nil, fmt.Errorf("failed to start json array: %w", err)
	}
	return &JSONSink{fileSink: fs}, nil
}

// Write implements Sink.
func (s *JSONSink) Write(_ context.Context, r *model.FetchRecord) error {
	b, err := json.MarshalIndent(r, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json record: %w", err)
	}
	sep := "\n  "
	if s.count > 0 {
		sep = ",\n  "
	}
	if _, err := s.w.WriteString(sep); err != nil {
		return fmt.Errorf("failed to write json record: %w", err)
	}
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("failed to write json record: %w", err)
	}
	s.count++
	return nil
}

// Close implements Sink.
func (s *JSONSink) Close() error {
	end := "]\n"
	if s.count > 0 {
		end = "\n]\n"
	}
	if _, err := s.w.WriteString(end); err != nil {
		_ = s.fileSink.close()
		return fmt.Errorf("failed to end json array: %w", err)
	}
	return s.fileSink.close()
}
