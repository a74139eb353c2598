package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nao1215/politecrawl/internal/model"
)

// StatusCount is a (status, records) pair.
type StatusCount struct {
	Status model.Status `json:"status"`
	Count  int          `json:"count"`
}

// Stats summarizes the stored records.
type Stats struct {
	// RunID is the run the stats cover; empty means all runs.
	RunID string `json:"run_id,omitempty"`

	Total    int                 `json:"total"`
	ByStatus []StatusCount       `json:"by_status"`
	ByDomain []model.DomainCount `json:"by_domain"`

	// FirstFetch and LastFetch bound the fetch timestamps.
	FirstFetch time.Time `json:"first_fetch"`
	LastFetch  time.Time `json:"last_fetch"`
}

// Duration is the time between the first and the last fetch.
func (s *Stats) Duration() time.Duration {
	if s.FirstFetch.IsZero() || s.LastFetch.IsZero() {
		return 0
	}
	return s.LastFetch.Sub(s.FirstFetch)
}

// Stats aggregates records of runID, or of every run when runID is empty.
func (cdb *CrawlDB) Stats(ctx context.Context, runID string) (*Stats, error) {
	where := ""
	var args []any
	if runID != "" {
		where = " WHERE run_id = ?"
		args = append(args, runID)
	}

	st := &Stats{RunID: runID}

	var first, last sql.NullString
	err := cdb.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(fetched_at), MAX(fetched_at) FROM records`+where, args...,
	).Scan(&st.Total, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	st.FirstFetch = parseTimestamp(first.String)
	st.LastFetch = parseTimestamp(last.String)

	rows, err := cdb.db.QueryContext(ctx,
		`SELECT status, COUNT(*) AS n FROM records`+where+` GROUP BY status ORDER BY n DESC, status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	for rows.Next() {
		var sc StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		sc.Status = model.Status(status)
		st.ByStatus = append(st.ByStatus, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = cdb.db.QueryContext(ctx,
		`SELECT domain, COUNT(*) AS n FROM records`+where+` GROUP BY domain ORDER BY n DESC, domain`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count domains: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc model.DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		st.ByDomain = append(st.ByDomain, dc)
	}
	return st, rows.Err()
}
