package model

import (
	"errors"
	"sync"
	"testing"
)

func TestPayloadKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		url         string
		want        PayloadKind
	}{
		{name: "html", contentType: "text/html; charset=utf-8", url: "https://example.com/", want: PayloadHTML},
		{name: "xhtml", contentType: "application/xhtml+xml", url: "https://example.com/", want: PayloadHTML},
		{name: "pdf", contentType: "application/pdf", url: "https://example.com/doc", want: PayloadPDF},
		{name: "pdf by extension", contentType: "application/octet-stream", url: "https://example.com/a.PDF?x=1", want: PayloadPDF},
		{name: "pdf extension with html type", contentType: "text/html", url: "https://example.com/a.pdf", want: PayloadHTML},
		{name: "html by extension", contentType: "", url: "https://example.com/index.htm", want: PayloadHTML},
		{name: "image", contentType: "image/png", url: "https://example.com/a.png", want: PayloadOther},
		{name: "unknown", contentType: "", url: "https://example.com/file", want: PayloadOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PayloadKindOf(tt.contentType, tt.url); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	for _, s := range AllStatuses {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if Status("pending").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if StatusSuccess.IsFailure() || StatusCaptcha.IsFailure() {
		t.Error("expected success and captcha not to count as failures")
	}
	if !StatusRetryExhausted.IsFailure() {
		t.Error("expected retry_exhausted to count as a failure")
	}
}

func TestFetchRecord_ComputeHash(t *testing.T) {
	t.Parallel()

	task := CrawlTask{URL: "https://example.com/", Domain: "example.com", Depth: 1}
	a := NewFetchRecord("run", task, StatusSuccess)
	a.Body = []byte("hello")
	a.ComputeHash()

	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if a.ContentHash != want {
		t.Errorf("expected %s, got %s", want, a.ContentHash)
	}
	if a.URL != task.URL || a.Domain != task.Domain || a.Depth != 1 {
		t.Errorf("expected record to copy task fields, got %+v", a)
	}

	empty := NewFetchRecord("run", task, StatusFailed)
	empty.ComputeHash()
	if empty.ContentHash != "" {
		t.Errorf("expected empty hash for empty body, got %q", empty.ContentHash)
	}
}

func TestRunSummary(t *testing.T) {
	t.Parallel()

	s := NewRunSummary("run-1", []string{"https://example.com/"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			domain := "a.example"
			if i%4 == 0 {
				domain = "b.example"
			}
			s.AddRecord(&FetchRecord{Status: StatusSuccess, Domain: domain})
			s.Inc(CounterEnqueued)
		}(i)
	}
	wg.Wait()
	s.AddRecord(&FetchRecord{Status: StatusFailed, Domain: "b.example"})
	s.Inc(CounterRejected)

	if s.Total() != 21 {
		t.Errorf("expected 21 records, got %d", s.Total())
	}
	if s.Count(StatusSuccess) != 20 || s.Count(StatusFailed) != 1 {
		t.Errorf("unexpected status counts %v", s.ByStatus)
	}
	if s.Enqueued != 20 || s.Rejected != 1 {
		t.Errorf("expected 20 enqueued and 1 rejected, got %d and %d", s.Enqueued, s.Rejected)
	}

	domains := s.Domains()
	if len(domains) != 2 || domains[0].Domain != "a.example" || domains[0].Count != 15 {
		t.Errorf("unexpected domain counts %v", domains)
	}

	s.Finish(true, errors.New("boom"))
	if !s.Cancelled || s.Error != "boom" {
		t.Errorf("expected cancelled run with error, got %v %q", s.Cancelled, s.Error)
	}
	if s.Duration() < 0 {
		t.Errorf("expected non-negative duration, got %v", s.Duration())
	}
}
