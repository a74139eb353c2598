package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/politecrawl/internal/model"
)

// ErrDatabaseNotFound is returned when opening a missing database without
// CreateIfNotExists.
var ErrDatabaseNotFound = errors.New("database not found")

// CrawlDB provides SQLite-based storage for fetch records and run summaries.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that "stats" can read while a
	// crawl is writing.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database file at dbPath.
// If CreateIfNotExists is true, the parent directory and the file are created.
// If it is false and the file does not exist, ErrDatabaseNotFound is returned.
func Open(dbPath string, opts Options) (*CrawlDB, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a new file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per terminal fetch record
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		final_url TEXT,
		domain TEXT NOT NULL,
		status TEXT NOT NULL,
		http_status INTEGER,
		depth INTEGER,
		discovered_from TEXT,
		priority INTEGER,
		retry_count INTEGER,
		payload_kind TEXT,
		content_type TEXT,
		title TEXT,
		snippet TEXT,
		links TEXT,
		anomalies TEXT,
		content_hash TEXT,
		text TEXT,
		reference TEXT,
		pdf_info TEXT,
		error TEXT,
		fetched_at TEXT NOT NULL,
		duration_ms INTEGER,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_records_domain ON records(domain);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	CREATE INDEX IF NOT EXISTS idx_records_fetched_at ON records(fetched_at);

	-- Run summaries, written when a run ends
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		name TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		cancelled INTEGER DEFAULT 0,
		summary_json TEXT NOT NULL
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// InsertRecord inserts or updates a fetch record.
// A record with the same run and URL is replaced.
func (cdb *CrawlDB) InsertRecord(ctx context.Context, r *model.FetchRecord) error {
	links, err := marshalOptional(r.Links)
	if err != nil {
		return fmt.Errorf("failed to serialize links: %w", err)
	}
	anomalies, err := marshalOptional(r.Anomalies)
	if err != nil {
		return fmt.Errorf("failed to serialize anomalies: %w", err)
	}
	pdfInfo, err := marshalOptional(r.PDFInfo)
	if err != nil {
		return fmt.Errorf("failed to serialize pdf info: %w", err)
	}

	query := `
	INSERT INTO records (run_id, url, final_url, domain, status, http_status, depth, discovered_from,
		priority, retry_count, payload_kind, content_type, title, snippet, links, anomalies,
		content_hash, text, reference, pdf_info, error, fetched_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		final_url = excluded.final_url,
		status = excluded.status,
		http_status = excluded.http_status,
		retry_count = excluded.retry_count,
		payload_kind = excluded.payload_kind,
		content_type = excluded.content_type,
		title = excluded.title,
		snippet = excluded.snippet,
		links = excluded.links,
		anomalies = excluded.anomalies,
		content_hash = excluded.content_hash,
		text = excluded.text,
		reference = excluded.reference,
		pdf_info = excluded.pdf_info,
		error = excluded.error,
		fetched_at = excluded.fetched_at,
		duration_ms = excluded.duration_ms
	`

	_, err = cdb.db.ExecContext(ctx, query,
		r.RunID,
		r.URL,
		r.FinalURL,
		r.Domain,
		string(r.Status),
		r.HTTPStatus,
		r.Depth,
		r.DiscoveredFrom,
		r.Priority,
		r.RetryCount,
		string(r.PayloadKind),
		r.ContentType,
		r.Title,
		r.Snippet,
		links,
		anomalies,
		r.ContentHash,
		r.Text,
		r.Reference,
		pdfInfo,
		r.Error,
		r.FetchedAt.UTC().Format(timeLayout),
		r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

const recordColumns = `run_id, url, final_url, domain, status, http_status, depth, discovered_from,
	priority, retry_count, payload_kind, content_type, title, snippet, links, anomalies,
	content_hash, text, reference, pdf_info, error, fetched_at, duration_ms`

// GetRecord retrieves the record of url in run runID.
// It returns nil without error when there is none.
func (cdb *CrawlDB) GetRecord(ctx context.Context, runID, url string) (*model.FetchRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE run_id = ? AND url = ?`

	rows, err := cdb.db.QueryContext(ctx, query, runID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

// RecordQuery filters Records. Empty fields match everything.
type RecordQuery struct {
	RunID  string
	Domain string
	Status model.Status
	// Limit caps the result size; 0 means no limit.
	Limit int
}

// Records returns records matching q, oldest first.
func (cdb *CrawlDB) Records(ctx context.Context, q RecordQuery) ([]*model.FetchRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE 1=1`
	args := make([]any, 0, 4)

	if q.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, q.RunID)
	}
	if q.Domain != "" {
		query += " AND domain = ?"
		args = append(args, q.Domain)
	}
	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, string(q.Status))
	}
	query += " ORDER BY fetched_at, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var results []*model.FetchRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRecord(rows *sql.Rows) (*model.FetchRecord, error) {
	var (
		r                               model.FetchRecord
		status, kind, fetchedAt         string
		finalURL, discoveredFrom, ctype sql.NullString
		title, snippet, hash, text      sql.NullString
		reference, errMsg               sql.NullString
		links, anomalies, pdfInfo       sql.NullString
		httpStatus, depth, priority     sql.NullInt64
		retryCount, durationMS          sql.NullInt64
	)
	err := rows.Scan(
		&r.RunID, &r.URL, &finalURL, &r.Domain, &status, &httpStatus, &depth, &discoveredFrom,
		&priority, &retryCount, &kind, &ctype, &title, &snippet, &links, &anomalies,
		&hash, &text, &reference, &pdfInfo, &errMsg, &fetchedAt, &durationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	r.FinalURL = finalURL.String
	r.Status = model.Status(status)
	r.HTTPStatus = int(httpStatus.Int64)
	r.Depth = int(depth.Int64)
	r.DiscoveredFrom = discoveredFrom.String
	r.Priority = int(priority.Int64)
	r.RetryCount = int(retryCount.Int64)
	r.PayloadKind = model.PayloadKind(kind)
	r.ContentType = ctype.String
	r.Title = title.String
	r.Snippet = snippet.String
	r.ContentHash = hash.String
	r.Text = text.String
	r.Reference = reference.String
	r.Error = errMsg.String
	r.FetchedAt = parseTimestamp(fetchedAt)
	r.DurationMS = durationMS.Int64

	if err := unmarshalOptional(links, &r.Links); err != nil {
		return nil, fmt.Errorf("failed to parse links: %w", err)
	}
	if err := unmarshalOptional(anomalies, &r.Anomalies); err != nil {
		return nil, fmt.Errorf("failed to parse anomalies: %w", err)
	}
	if err := unmarshalOptional(pdfInfo, &r.PDFInfo); err != nil {
		return nil, fmt.Errorf("failed to parse pdf info: %w", err)
	}
	return &r, nil
}

// SaveRun stores the summary of a finished run, replacing an earlier one
// with the same run ID.
func (cdb *CrawlDB) SaveRun(ctx context.Context, s *model.RunSummary) error {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}

	var endedAt any
	if !s.EndedAt.IsZero() {
		endedAt = s.EndedAt.UTC().Format(timeLayout)
	}

	query := `
	INSERT INTO runs (run_id, name, started_at, ended_at, cancelled, summary_json)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		name = excluded.name,
		ended_at = excluded.ended_at,
		cancelled = excluded.cancelled,
		summary_json = excluded.summary_json
	`
	_, err = cdb.db.ExecContext(ctx, query,
		s.RunID,
		s.Name,
		s.StartedAt.UTC().Format(timeLayout),
		endedAt,
		s.Cancelled,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// RunInfo is a row of the runs table.
type RunInfo struct {
	RunID     string
	Name      string
	StartedAt time.Time
	EndedAt   time.Time
	Cancelled bool
}

// Runs lists stored runs, most recent first.
func (cdb *CrawlDB) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := cdb.db.QueryContext(ctx, `
	SELECT run_id, name, started_at, ended_at, cancelled
	FROM runs
	ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunInfo
	for rows.Next() {
		var (
			info        RunInfo
			name, ended sql.NullString
			started     string
			cancelled   bool
		)
		if err := rows.Scan(&info.RunID, &name, &started, &ended, &cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		info.Name = name.String
		info.StartedAt = parseTimestamp(started)
		info.EndedAt = parseTimestamp(ended.String)
		info.Cancelled = cancelled
		results = append(results, info)
	}
	return results, rows.Err()
}

// GetRun retrieves the stored summary of a run.
// It returns nil without error when there is none.
func (cdb *CrawlDB) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	var summaryJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT summary_json FROM runs WHERE run_id = ?`, runID).Scan(&summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var s model.RunSummary
	if err := json.Unmarshal([]byte(summaryJSON), &s); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &s, nil
}

func marshalOptional(v any) (any, error) {
	switch x := v.(type) {
	case []string:
		if len(x) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(x) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalOptional(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

// timeLayout is a fixed-width RFC 3339 layout, so stored timestamps sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // written by this package
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
