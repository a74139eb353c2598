package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/crawler"
	"github.com/nao1215/politecrawl/internal/model"
)

// writeTestConfig writes a fast, self-contained configuration under dir.
func writeTestConfig(t *testing.T, dir, format string) string {
	t.Helper()

	content := fmt.Sprintf(`scraper:
  concurrency: 2
  max_depth: 1
  timeout: 5s
crawl:
  request_delay: 0
  backoff_base: 5ms
  backoff_max: 20ms
pdf:
  ocr_enabled: false
  store_dir: %[1]s/pdfs
captcha:
  snapshot_dir: %[1]s/captcha_logs
output_dir: %[1]s/out
output_format: %[2]s
db_path: %[1]s/crawler.db
shutdown_timeout: 1s
`, filepath.ToSlash(dir), format)

	path := filepath.Join(dir, "politecrawl.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// newSite serves a two-page site without robots.txt.
func newSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Home page</title></head><body><a href="/a">A</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Page A</title></head><body>leaf</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// execRoot runs the root command with args and returns stdout.
func execRoot(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func readJSONL(t *testing.T, dir string) []model.FetchRecord {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "crawl_results_*.jsonl"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one result file, got %v", matches)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("failed to open results: %v", err)
	}
	defer f.Close()

	var records []model.FetchRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r model.FetchRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("invalid jsonl line %q: %v", sc.Text(), err)
		}
		records = append(records, r)
	}
	return records
}

func TestNewRunCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRunCmd()
	for _, name := range []string{"config", "overlay", "concurrency", "max-depth", "format", "output-dir", "batch", "metrics-addr", "report", "report-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestRunCmd_Crawl(t *testing.T) {
	t.Parallel()

	t.Run("crawls a site and prints the summary", func(t *testing.T) {
		t.Parallel()

		srv := newSite(t)
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir, config.FormatCSV)

		out, err := execRoot(t, context.Background(),
			"run", "-c", cfgPath, "--overlay", "", "-f", "jsonl", srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(out, "CRAWL SUMMARY") {
			t.Errorf("expected text summary, got %q", out)
		}
		if !strings.Contains(out, "Complete") {
			t.Errorf("expected complete run, got %q", out)
		}

		records := readJSONL(t, filepath.Join(dir, "out"))
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		seen := map[string]bool{}
		for _, r := range records {
			seen[r.URL] = true
			if r.Status != model.StatusSuccess {
				t.Errorf("expected success for %s, got %s", r.URL, r.Status)
			}
			if r.RunID != records[0].RunID {
				t.Errorf("expected one run ID, got %s and %s", r.RunID, records[0].RunID)
			}
		}
		if !seen[srv.URL+"/"] || !seen[srv.URL+"/a"] {
			t.Errorf("expected both pages, got %v", seen)
		}
	})

	t.Run("max-depth flag overrides the config", func(t *testing.T) {
		t.Parallel()

		srv := newSite(t)
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir, config.FormatJSONL)

		if _, err := execRoot(t, context.Background(),
			"run", "-c", cfgPath, "--overlay", "", "-d", "0", srv.URL+"/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records := readJSONL(t, filepath.Join(dir, "out")); len(records) != 1 {
			t.Errorf("expected only the seed, got %d records", len(records))
		}
	})

	t.Run("overlay is merged over the config", func(t *testing.T) {
		t.Parallel()

		srv := newSite(t)
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir, config.FormatJSONL)
		overlay := filepath.Join(dir, "temp_config.yaml")
		if err := os.WriteFile(overlay, []byte("scraper:\n  max_depth: 0\n"), 0600); err != nil {
			t.Fatalf("failed to write overlay: %v", err)
		}

		if _, err := execRoot(t, context.Background(),
			"run", "-c", cfgPath, "--overlay", overlay, srv.URL+"/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if records := readJSONL(t, filepath.Join(dir, "out")); len(records) != 1 {
			t.Errorf("expected only the seed, got %d records", len(records))
		}
	})

	t.Run("writes the report file", func(t *testing.T) {
		t.Parallel()

		srv := newSite(t)
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir, config.FormatJSONL)
		reportPath := filepath.Join(dir, "reports", "summary.md")

		out, err := execRoot(t, context.Background(),
			"run", "-c", cfgPath, "--overlay", "", "-r", "markdown", "-o", reportPath, srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(content), "# Crawl Summary") {
			t.Errorf("expected markdown summary, got %q", content)
		}
		if !strings.Contains(out, "CRAWL SUMMARY") {
			t.Errorf("expected text summary on stdout, got %q", out)
		}
	})

	t.Run("cancelled run is not an error", func(t *testing.T) {
		t.Parallel()

		srv := newSite(t)
		dir := t.TempDir()
		cfgPath := writeTestConfig(t, dir, config.FormatJSONL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out, err := execRoot(t, ctx, "run", "-c", cfgPath, "--overlay", "", srv.URL+"/")
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if !strings.Contains(out, "Cancelled") {
			t.Errorf("expected cancelled summary, got %q", out)
		}
	})
}

func TestRunCmd_ConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, config.FormatJSONL)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{
			name: "no seeds",
			args: []string{"run", "-c", cfgPath, "--overlay", ""},
			want: crawler.ErrNoSeeds,
		},
		{
			name: "seeds and batch",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "--batch", "jobs.yaml", "https://example.com/"},
			want: errSeedsAndBatch,
		},
		{
			name: "missing config file",
			args: []string{"run", "-c", filepath.Join(dir, "missing.yaml"), "https://example.com/"},
			want: config.ErrConfigNotFound,
		},
		{
			name: "invalid concurrency",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "-n", "0", "https://example.com/"},
			want: config.ErrInvalidConcurrency,
		},
		{
			name: "unknown output format",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "-f", "xml", "https://example.com/"},
			want: config.ErrInvalidOutputFormat,
		},
		{
			name: "unknown report format",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "-r", "html", "https://example.com/"},
			want: model.ErrConfig,
		},
		{
			name: "missing batch file",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "--batch", filepath.Join(dir, "none.yaml")},
			want: config.ErrConfigNotFound,
		},
		{
			name: "seed rejected by filter",
			args: []string{"run", "-c", cfgPath, "--overlay", "", "mailto:someone@example.com"},
			want: crawler.ErrNoSeeds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execRoot(t, context.Background(), tt.args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if code := exitCode(err); code != exitConfigError {
				t.Errorf("expected exit code %d, got %d", exitConfigError, code)
			}
		})
	}
}

func TestRunCmd_Batch(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, config.FormatSQLite)

	batch := fmt.Sprintf(`batch_urls:
  - url: %[1]s/a
    priority: 2
    description: leaf only
  - url: %[1]s/
    priority: 1
    description: home shallow
    custom_config:
      scraper:
        max_depth: 0
  - url: "   "
    description: skipped
`, srv.URL)
	batchPath := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(batchPath, []byte(batch), 0600); err != nil {
		t.Fatalf("failed to write batch file: %v", err)
	}

	out, err := execRoot(t, context.Background(), "run", "-c", cfgPath, "--overlay", "", "--batch", batchPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := strings.Index(out, "CRAWL SUMMARY: home shallow")
	second := strings.Index(out, "CRAWL SUMMARY: leaf only")
	if first < 0 || second < 0 {
		t.Fatalf("expected one summary per job, got %q", out)
	}
	if first > second {
		t.Error("expected the lower priority value to run first")
	}

	runs, err := execRoot(t, context.Background(), "stats", "-c", cfgPath, "--overlay", "", "--runs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(runs, "2 runs") {
		t.Errorf("expected 2 stored runs, got %q", runs)
	}

	stats, err := execRoot(t, context.Background(), "stats", "-c", cfgPath, "--overlay", "", "-f", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(stats), &st); err != nil {
		t.Fatalf("invalid stats JSON %q: %v", stats, err)
	}
	// One record for each job: the shallow home page and the leaf.
	if st.Total != 2 {
		t.Errorf("expected 2 records, got %d", st.Total)
	}
}
