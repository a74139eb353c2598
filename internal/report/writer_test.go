package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

// createTestSummary creates a summary with sample data for testing.
func createTestSummary() *model.RunSummary {
	s := model.NewRunSummary("run-123", []string{"https://example.com/"})
	s.Name = "docs"
	for i := 0; i < 3; i++ {
		s.AddRecord(&model.FetchRecord{Status: model.StatusSuccess, Domain: "example.com"})
	}
	s.AddRecord(&model.FetchRecord{Status: model.StatusRobotsBlocked, Domain: "example.com"})
	s.AddRecord(&model.FetchRecord{Status: model.StatusFailed, Domain: "other.test"})
	s.Inc(model.CounterEnqueued)
	s.Inc(model.CounterDeduplicated)
	s.Finish(false, nil)
	return s
}

func createTestStats() *database.Stats {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &database.Stats{
		Total: 5,
		ByStatus: []database.StatusCount{
			{Status: model.StatusSuccess, Count: 4},
			{Status: model.StatusFailed, Count: 1},
		},
		ByDomain:   []model.DomainCount{{Domain: "example.com", Count: 5}},
		FirstFetch: first,
		LastFetch:  first.Add(90 * time.Second),
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes run summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteSummary(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"CRAWL SUMMARY: docs", "run-123", "Complete", "success:", "robots_blocked:", "TOTAL:", "5 (2 failed)", "example.com"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("cancelled run is marked", func(t *testing.T) {
		t.Parallel()

		s := model.NewRunSummary("r", nil)
		s.Finish(true, nil)
		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteSummary(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Cancelled") {
			t.Errorf("expected cancelled status, got:\n%s", buf.String())
		}
	})

	t.Run("long domain lists are cut unless verbose", func(t *testing.T) {
		t.Parallel()

		st := &database.Stats{Total: 12}
		for i := 0; i < 12; i++ {
			st.ByDomain = append(st.ByDomain, model.DomainCount{Domain: fmt.Sprintf("d%02d.test", i), Count: 1})
		}

		var short bytes.Buffer
		if _, err := NewSimpleWriter(&short).WriteStats(st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(short.String(), "and 2 more") || strings.Contains(short.String(), "d11.test") {
			t.Errorf("expected truncated domain list, got:\n%s", short.String())
		}

		var full bytes.Buffer
		if _, err := NewSimpleWriter(&full, WithVerbose(true)).WriteStats(st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(full.String(), "d11.test") {
			t.Errorf("expected every domain, got:\n%s", full.String())
		}
	})

	t.Run("writes stats", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteStats(createTestStats()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"CRAWL DATABASE STATS", "5 records", "1m30s", "success:", "example.com"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("summary includes derived fields", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteSummary(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["run_id"] != "run-123" {
			t.Errorf("expected run_id, got %v", got["run_id"])
		}
		if got["total"] != float64(5) || got["failed"] != float64(2) {
			t.Errorf("expected total 5 and failed 2, got %v %v", got["total"], got["failed"])
		}
		byStatus, ok := got["by_status"].(map[string]any)
		if !ok || byStatus["success"] != float64(3) {
			t.Errorf("unexpected by_status %v", got["by_status"])
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteStats(createTestStats()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"total\": 5") {
			t.Errorf("expected indented output, got:\n%s", buf.String())
		}
		if !strings.Contains(buf.String(), "\"duration_ms\": 90000") {
			t.Errorf("expected duration_ms, got:\n%s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteSummary(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# Crawl Summary: docs", "## Records", "`robots_blocked`", "```mermaid", "## By Domain", "[!IMPORTANT]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("empty stats", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteStats(&database.Stats{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "No records.") {
			t.Errorf("expected empty notice, got:\n%s", output)
		}
		if strings.Contains(output, "mermaid") {
			t.Errorf("expected no chart without data, got:\n%s", output)
		}
	})
}

// TestNewWriter tests format selection.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"", "*report.SimpleWriter"},
		{"text", "*report.SimpleWriter"},
		{"json", "*report.JSONWriter"},
		{"markdown", "*report.MarkdownWriter"},
		{"md", "*report.MarkdownWriter"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			w, err := NewWriter(tt.format, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", w); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if _, err := NewWriter("xml", &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	m := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
	n, err := m.WriteSummary(createTestSummary())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != a.Len()+b.Len() {
		t.Errorf("expected %d bytes, got %d", a.Len()+b.Len(), n)
	}
	if a.Len() == 0 || b.Len() == 0 {
		t.Error("expected both writers to receive output")
	}
}

// TestTruncateString tests the truncateString helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
