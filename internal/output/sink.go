package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

var (
	// ErrSinkUnwritable is returned when records can no longer be written,
	// either because the backend failed or because it stopped draining.
	// It ends the crawl.
	ErrSinkUnwritable = errors.New("output sink unwritable")

	// ErrSinkClosed is returned by Write after Close.
	ErrSinkClosed = errors.New("output sink closed")

	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid fetch record")

	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown output format")
)

// Sink receives terminal fetch records.
type Sink interface {
	Write(ctx context.Context, r *model.FetchRecord) error
	Close() error
}

// RunRecorder is implemented by sinks that also store run summaries.
type RunRecorder interface {
	SaveRun(ctx context.Context, s *model.RunSummary) error
}

// Pather is implemented by sinks that write to a file.
type Pather interface {
	Path() string
}

// Validate checks the fields every backend relies on.
func Validate(r *model.FetchRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case r.URL == "":
		return fmt.Errorf("%w: empty url", ErrInvalidRecord)
	case !r.Status.Valid():
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, r.Status)
	case r.FetchedAt.IsZero():
		return fmt.Errorf("%w: missing fetched_at", ErrInvalidRecord)
	}
	return nil
}

// FileName returns "crawl_results_{UTC yyyymmdd_hhmmss}.{ext}".
func FileName(t time.Time, ext string) string {
	return "crawl_results_" + t.UTC().Format("20060102_150405") + "." + ext
}

// New opens the backend selected by cfg.OutputFormat and wraps it in Async.
// runStart stamps the result file name.
func New(cfg *config.Config, runStart time.Time, logger *slog.Logger) (*Async, error) {
	var (
		inner Sink
		err   error
	)
	switch strings.ToLower(cfg.OutputFormat) {
	case config.FormatCSV:
		inner, err = NewCSVSink(filepath.Join(cfg.OutputDir, FileName(runStart, "csv")))
	case config.FormatJSONL:
		inner, err = NewJSONLSink(filepath.Join(cfg.OutputDir, FileName(runStart, "jsonl")))
	case config.FormatJSON:
		inner, err = NewJSONSink(filepath.Join(cfg.OutputDir, FileName(runStart, "json")))
	case config.FormatSQLite:
		inner, err = NewSQLiteSink(cfg.DBPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.OutputFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSinkUnwritable, err)
	}
	return NewAsync(inner, cfg.Output.QueueSize, cfg.Output.WriteTimeout.Duration, logger), nil
}

// SQLiteSink writes records to the records table of a CrawlDB.
type SQLiteSink struct {
	db *database.CrawlDB
}

// NewSQLiteSink opens or creates the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := database.Open(path, database.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, r *model.FetchRecord) error {
	return s.db.InsertRecord(ctx, r)
}

// SaveRun implements RunRecorder.
func (s *SQLiteSink) SaveRun(ctx context.Context, summary *model.RunSummary) error {
	return s.db.SaveRun(ctx, summary)
}

// Path implements Pather.
func (s *SQLiteSink) Path() string {
	return s.db.Path()
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
