package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the terminal state of a crawl task as written to the output sink.
type Status string

const (
	// StatusSuccess means the page was fetched and routed.
	StatusSuccess Status = "success"

	// StatusFailed means the server answered with a permanent error (4xx).
	StatusFailed Status = "failed"

	// StatusRetryExhausted means every allowed retry failed.
	StatusRetryExhausted Status = "retry_exhausted"

	// StatusRobotsBlocked means robots.txt disallows the path.
	StatusRobotsBlocked Status = "robots_blocked"

	// StatusCaptcha means a challenge page was detected and handled by the
	// fallback handler (snapshot taken when enabled).
	StatusCaptcha Status = "captcha"

	// StatusCaptchaUnsolved means a challenge page was detected and could
	// not be solved, or CAPTCHA handling is disabled.
	StatusCaptchaUnsolved Status = "captcha_unsolved"
)

// AllStatuses lists every terminal status in report order.
var AllStatuses = []Status{
	StatusSuccess,
	StatusFailed,
	StatusRetryExhausted,
	StatusRobotsBlocked,
	StatusCaptcha,
	StatusCaptchaUnsolved,
}

// String returns the status as stored in output sinks.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of AllStatuses.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsFailure reports whether the status counts as a failed task.
func (s Status) IsFailure() bool {
	return s != StatusSuccess && s != StatusCaptcha
}

// PayloadKind classifies the body of a fetched resource.
type PayloadKind string

const (
	// PayloadHTML is an HTML or XHTML document.
	PayloadHTML PayloadKind = "html"
	// PayloadPDF is a PDF document.
	PayloadPDF PayloadKind = "pdf"
	// PayloadOther is anything else (images, archives, unknown types).
	PayloadOther PayloadKind = "other"
)

// PayloadKindOf classifies a response by Content-Type, falling back to the
// URL extension when the server sends a generic type.
func PayloadKindOf(contentType, rawURL string) PayloadKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/html"), strings.HasPrefix(ct, "application/xhtml+xml"):
		return PayloadHTML
	case strings.HasPrefix(ct, "application/pdf"):
		return PayloadPDF
	}

	path := strings.ToLower(rawURL)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if strings.HasSuffix(path, ".pdf") &&
		(ct == "" || strings.HasPrefix(ct, "application/octet-stream")) {
		return PayloadPDF
	}
	if ct == "" && (strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm")) {
		return PayloadHTML
	}
	return PayloadOther
}

// FetchRecord is the result of one task as handed to the output sink.
// Exactly one record is produced per terminal task.
type FetchRecord struct {
	// RunID identifies the crawl run that produced the record.
	RunID string `json:"run_id"`

	URL            string `json:"url"`
	FinalURL       string `json:"final_url,omitempty"`
	Domain         string `json:"domain"`
	Status         Status `json:"status"`
	HTTPStatus     int    `json:"http_status,omitempty"`
	Depth          int    `json:"depth"`
	DiscoveredFrom string `json:"discovered_from,omitempty"`
	Priority       int    `json:"priority"`
	RetryCount     int    `json:"retry_count"`

	PayloadKind PayloadKind `json:"payload_kind,omitempty"`
	ContentType string      `json:"content_type,omitempty"`

	// Title and Snippet are only populated for HTML payloads.
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	// Links are the outbound links in document order, before filtering.
	Links []string `json:"links,omitempty"`

	// Anomalies are content quality hints (missing title, 404 text, ...).
	Anomalies []string `json:"anomalies,omitempty"`

	// ContentHash is the hex sha256 of the raw body.
	ContentHash string `json:"content_hash,omitempty"`

	// Text is extracted PDF text when OCR is enabled.
	Text string `json:"text,omitempty"`

	// Reference points at raw bytes stored on disk (PDF store or CAPTCHA snapshot).
	Reference string `json:"reference,omitempty"`

	// PDFInfo holds the PDF info dictionary, when present.
	PDFInfo map[string]string `json:"pdf_info,omitempty"`

	// Error is the human-readable failure cause for non-success records.
	Error string `json:"error,omitempty"`

	FetchedAt  time.Time `json:"fetched_at"`
	DurationMS int64     `json:"duration_ms"`

	// Body is kept in memory for routing and never serialized.
	Body []byte `json:"-"`
}

// NewFetchRecord creates a record pre-filled from the task.
func NewFetchRecord(runID string, task CrawlTask, status Status) *FetchRecord {
	return &FetchRecord{
		RunID:          runID,
		URL:            task.URL,
		Domain:         task.Domain,
		Status:         status,
		Depth:          task.Depth,
		DiscoveredFrom: task.DiscoveredFrom,
		Priority:       task.Priority,
		RetryCount:     task.RetryCount,
		FetchedAt:      time.Now().UTC(),
	}
}

// ComputeHash sets ContentHash from Body.
// An empty body leaves the hash empty.
func (r *FetchRecord) ComputeHash() {
	if len(r.Body) == 0 {
		r.ContentHash = ""
		return
	}
	sum := sha256.Sum256(r.Body)
	r.ContentHash = hex.EncodeToString(sum[:])
}
