package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/log"
	"github.com/nao1215/politecrawl/internal/report"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics of stored crawl records",
		Long: `Stats reads the SQLite database written by the sqlite output format and
reports the total number of records, the records per status and per
domain, the latest fetch time and the crawl duration.

Examples:
  # Statistics over every stored run
  politecrawl stats

  # Statistics of one run, as Markdown
  politecrawl stats --run 2b0c4d1e-... -f markdown

  # List stored runs
  politecrawl stats --runs

  # Export to a spreadsheet (.xlsx) or CSV (.csv)
  politecrawl stats --export stats.xlsx`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	addConfigFlags(cmd)
	cmd.Flags().String("db", "", "SQLite database path (overrides db_path)")
	cmd.Flags().String("run", "", "Restrict statistics to one run ID")
	cmd.Flags().Bool("runs", false, "List stored runs")
	cmd.Flags().StringP("format", "f", report.FormatText, "Output format: text, markdown or json")
	cmd.Flags().String("export", "", "Export statistics to a .csv or .xlsx file")

	return cmd
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	dbPath, err := flags.GetString("db")
	if err != nil {
		return err
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	listRuns, err := flags.GetBool("runs")
	if err != nil {
		return err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	exportPath, err := flags.GetString("export")
	if err != nil {
		return err
	}

	writer, err := report.NewWriter(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))
	logger.Debug("opening database", "path", dbPath, "run", runID)

	// Read-only: a missing database is reported, not created.
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbPath, opts)
	if err != nil {
		return fmt.Errorf("failed to open database (run a crawl with output_format: sqlite first): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if listRuns {
		return printRuns(ctx, cmd.OutOrStdout(), db)
	}

	st, err := db.Stats(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := writer.WriteStats(st); err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}

	if exportPath != "" {
		if err := exportStats(exportPath, st); err != nil {
			return err
		}
		logger.Debug("statistics exported", "path", exportPath, "records", st.Total)
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported statistics to %s\n", exportPath)
	}
	return nil
}

// printRuns lists stored runs, most recent first.
func printRuns(ctx context.Context, w io.Writer, db *database.CrawlDB) error {
	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}

	fmt.Fprintf(w, "%d runs:\n\n", len(runs))
	fmt.Fprintf(w, "  %-36s  %-20s  %-10s  %s\n", "Run ID", "Started", "Duration", "Name")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 80))
	for _, r := range runs {
		duration := "running"
		if !r.EndedAt.IsZero() {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		name := r.Name
		if r.Cancelled {
			name += " (cancelled)"
		}
		fmt.Fprintf(w, "  %-36s  %-20s  %-10s  %s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			name,
		)
	}
	return nil
}

// exportStats writes st to path; the extension selects CSV or XLSX.
func exportStats(path string, st *database.Stats) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return exportCSV(path, st)
	case ".xlsx":
		return exportXLSX(path, st)
	default:
		return fmt.Errorf("unsupported export format %q (use .csv or .xlsx)", filepath.Ext(path))
	}
}

// statsRows flattens st into (section, key, value) rows.
func statsRows(st *database.Stats) [][]string {
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "total", strconv.Itoa(st.Total)},
		{"summary", "first_fetch", formatTime(st.FirstFetch)},
		{"summary", "last_fetch", formatTime(st.LastFetch)},
		{"summary", "duration_seconds", strconv.FormatFloat(st.Duration().Seconds(), 'f', 0, 64)},
	}
	for _, sc := range st.ByStatus {
		rows = append(rows, []string{"status", string(sc.Status), strconv.Itoa(sc.Count)})
	}
	for _, dc := range st.ByDomain {
		rows = append(rows, []string{"domain", dc.Domain, strconv.Itoa(dc.Count)})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func exportCSV(path string, st *database.Stats) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(statsRows(st)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return f.Close()
}

// exportXLSX writes a Summary sheet plus one sheet per breakdown.
func exportXLSX(path string, st *database.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	summary := [][]any{
		{"Total records", st.Total},
		{"First fetch", formatTime(st.FirstFetch)},
		{"Last fetch", formatTime(st.LastFetch)},
		{"Duration (s)", int64(st.Duration().Seconds())},
	}
	if err := setRows(f, "Summary", summary); err != nil {
		return err
	}

	byStatus := [][]any{{"Status", "Records"}}
	for _, sc := range st.ByStatus {
		byStatus = append(byStatus, []any{string(sc.Status), sc.Count})
	}
	byDomain := [][]any{{"Domain", "Records"}}
	for _, dc := range st.ByDomain {
		byDomain = append(byDomain, []any{dc.Domain, dc.Count})
	}
	for _, sheet := range []struct {
		name string
		rows [][]any
	}{
		{"Status", byStatus},
		{"Domains", byDomain},
	} {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		if err := setRows(f, sheet.name, sheet.rows); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save spreadsheet: %w", err)
	}
	return nil
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
