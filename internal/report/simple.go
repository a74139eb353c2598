package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

// maxDomainRows caps the domain table of text output unless verbose.
const maxDomainRows = 10

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every domain instead of the busiest ones.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSummary outputs the run summary in human-readable format.
func (w *SimpleWriter) WriteSummary(s *model.RunSummary) (int, error) {
	var sb strings.Builder

	title := "CRAWL SUMMARY"
	if s.Name != "" {
		title += ": " + s.Name
	}
	w.writeBanner(&sb, title)

	sb.WriteString(fmt.Sprintf("Run ID:     %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Started:    %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", s.Duration().Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Status:     %s\n", runState(s)))
	if len(s.Seeds) > 0 {
		sb.WriteString(fmt.Sprintf("Seeds:      %s\n", strings.Join(s.Seeds, ", ")))
	}
	sb.WriteString("\n")

	w.writeSection(&sb, "RECORDS")
	for _, st := range model.AllStatuses {
		sb.WriteString(fmt.Sprintf("  %-18s %d\n", st+":", s.Count(st)))
	}
	sb.WriteString(fmt.Sprintf("  %-18s %d (%d failed)\n", "TOTAL:", s.Total(), failures(s)))
	sb.WriteString("\n")

	w.writeSection(&sb, "FRONTIER")
	sb.WriteString(fmt.Sprintf("  %-18s %d\n", "enqueued:", s.Enqueued))
	sb.WriteString(fmt.Sprintf("  %-18s %d\n", "deduplicated:", s.Deduplicated))
	sb.WriteString(fmt.Sprintf("  %-18s %d\n", "rejected:", s.Rejected))
	sb.WriteString(fmt.Sprintf("  %-18s %d\n", "retried:", s.Retried))
	sb.WriteString(fmt.Sprintf("  %-18s %d\n", "deferred:", s.Deferred))
	sb.WriteString("\n")

	w.writeDomains(&sb, s.Domains())
	return w.output.Write([]byte(sb.String()))
}

// WriteStats outputs database statistics in human-readable format.
func (w *SimpleWriter) WriteStats(st *database.Stats) (int, error) {
	var sb strings.Builder

	w.writeBanner(&sb, "CRAWL DATABASE STATS")
	if st.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run ID:       %s\n", st.RunID))
	}
	sb.WriteString(fmt.Sprintf("Total:        %d records\n", st.Total))
	if !st.LastFetch.IsZero() {
		sb.WriteString(fmt.Sprintf("Latest fetch: %s\n", st.LastFetch.Format("2006-01-02 15:04:05 MST")))
		sb.WriteString(fmt.Sprintf("Crawl span:   %s\n", st.Duration().Round(time.Second)))
	}
	sb.WriteString("\n")

	w.writeSection(&sb, "BY STATUS")
	if len(st.ByStatus) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, sc := range st.ByStatus {
		sb.WriteString(fmt.Sprintf("  %-18s %d\n", sc.Status+":", sc.Count))
	}
	sb.WriteString("\n")

	w.writeDomains(&sb, st.ByDomain)
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeDomains(sb *strings.Builder, domains []model.DomainCount) {
	w.writeSection(sb, "BY DOMAIN")
	if len(domains) == 0 {
		sb.WriteString("  (none)\n\n")
		return
	}
	shown := domains
	if !w.verbose && len(shown) > maxDomainRows {
		shown = shown[:maxDomainRows]
	}
	for _, d := range shown {
		sb.WriteString(fmt.Sprintf("  %-40s %d\n", truncateString(d.Domain, 40), d.Count))
	}
	if rest := len(domains) - len(shown); rest > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more (use --verbose)\n", rest))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
}
