package crawler

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Content quality hints recorded on HTML records.
const (
	AnomalyShortTitle   = "missing_or_short_title"
	AnomalyShortSnippet = "insufficient_snippet_text"
	AnomalyNoTitleTag   = "no_title_tag"
	AnomalyNotFound     = "potential_404"
	AnomalyTruncated    = "body_truncated"
	AnomalyNoIndex      = "noindex"
	AnomalyExtractText  = "text_extraction_failed"
)

const (
	minTitleLength   = 5
	minSnippetLength = 30
)

var notFoundMarker = []byte("not found")

// DetectAnomalies flags pages that are likely error pages or empty shells.
// body is the UTF-8 HTML the page was parsed from.
func DetectAnomalies(page *Page, body []byte) []string {
	var issues []string

	title := strings.TrimSpace(page.Title)
	if utf8.RuneCountInString(title) < minTitleLength {
		issues = append(issues, AnomalyShortTitle)
	}
	if utf8.RuneCountInString(strings.TrimSpace(page.Snippet)) < minSnippetLength {
		issues = append(issues, AnomalyShortSnippet)
	}
	if !page.HasTitleTag {
		issues = append(issues, AnomalyNoTitleTag)
	}
	if strings.Contains(title, "404") || bytes.Contains(bytes.ToLower(body), notFoundMarker) {
		issues = append(issues, AnomalyNotFound)
	}
	if page.NoIndex() {
		issues = append(issues, AnomalyNoIndex)
	}
	return issues
}
