package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/politecrawl/internal/database"
	"github.com/nao1215/politecrawl/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing, e.g. as a
// CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteSummary outputs the run summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(s *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	title := "Crawl Summary"
	if s.Name != "" {
		title += ": " + s.Name
	}
	md.H1(title)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration().Round(time.Millisecond).String()},
			{"Status", runState(s)},
			{"Seeds", strconv.Itoa(len(s.Seeds))},
		},
	})
	md.PlainText("")

	md.H2("Records")
	md.PlainText("")
	counts := make([]database.StatusCount, 0, len(model.AllStatuses))
	rows := make([][]string, 0, len(model.AllStatuses)+1)
	for _, st := range model.AllStatuses {
		n := s.Count(st)
		counts = append(counts, database.StatusCount{Status: st, Count: n})
		rows = append(rows, []string{"`" + string(st) + "`", strconv.Itoa(n)})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(s.Total()) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Status", "Count"}, Rows: rows})
	md.PlainText("")
	w.writePieChart(md, counts)
	w.writeAlert(md, s)

	md.H2("Frontier")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Enqueued", strconv.Itoa(s.Enqueued)},
			{"Deduplicated", strconv.Itoa(s.Deduplicated)},
			{"Rejected", strconv.Itoa(s.Rejected)},
			{"Retried", strconv.Itoa(s.Retried)},
			{"Deferred", strconv.Itoa(s.Deferred)},
		},
	})
	md.PlainText("")

	w.writeDomains(md, s.Domains())
	return len(md.String()), md.Build()
}

// WriteStats outputs database statistics in Markdown format.
func (w *MarkdownWriter) WriteStats(st *database.Stats) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Database Stats")
	md.PlainText("")

	rows := [][]string{{"Total records", strconv.Itoa(st.Total)}}
	if st.RunID != "" {
		rows = append(rows, []string{"Run ID", "`" + st.RunID + "`"})
	}
	if !st.LastFetch.IsZero() {
		rows = append(rows,
			[]string{"Latest fetch", st.LastFetch.Format("2006-01-02 15:04:05 MST")},
			[]string{"Crawl span", st.Duration().Round(time.Second).String()},
		)
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	md.H2("By Status")
	md.PlainText("")
	if len(st.ByStatus) == 0 {
		md.PlainText("No records.")
		md.PlainText("")
	} else {
		statusRows := make([][]string, 0, len(st.ByStatus))
		for _, sc := range st.ByStatus {
			statusRows = append(statusRows, []string{"`" + string(sc.Status) + "`", strconv.Itoa(sc.Count)})
		}
		md.Table(markdown.TableSet{Header: []string{"Status", "Count"}, Rows: statusRows})
		md.PlainText("")
		w.writePieChart(md, st.ByStatus)
	}

	w.writeDomains(md, st.ByDomain)
	return len(md.String()), md.Build()
}

// writePieChart writes a mermaid pie chart of the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts []database.StatusCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Records by Status"),
		piechart.WithShowData(true),
	)
	plotted := false
	for _, c := range counts {
		if c.Count > 0 {
			chart.LabelAndIntValue(string(c.Status), uint64(c.Count))
			plotted = true
		}
	}
	if !plotted {
		return
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert based on how the run ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	failed := failures(s)
	switch {
	case s.Error != "":
		md.Cautionf("The run ended on a fatal error: %s", s.Error)
	case s.Cancelled:
		md.Warningf("The run was cancelled after %s; results are partial.", s.Duration().Round(time.Second))
	case failed > 0:
		md.Importantf("%d of %d record(s) failed.", failed, s.Total())
	case s.Total() == 0:
		md.Note("No pages were fetched.")
	default:
		md.Tip("Every fetched page succeeded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDomains(md *markdown.Markdown, domains []model.DomainCount) {
	md.H2("By Domain")
	md.PlainText("")
	if len(domains) == 0 {
		md.PlainText("No records.")
		md.PlainText("")
		return
	}
	rows := make([][]string, len(domains))
	for i, d := range domains {
		rows[i] = []string{"`" + truncateString(d.Domain, 60) + "`", strconv.Itoa(d.Count)}
	}
	md.Table(markdown.TableSet{Header: []string{"Domain", "Records"}, Rows: rows})
	md.PlainText("")
}
