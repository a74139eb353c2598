// Package report renders run summaries and database statistics.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown tables and a mermaid status chart
//
// The "run" command prints a RunSummary when a crawl ends and the
// "stats" command prints database Stats; both go through a Writer.
package report
