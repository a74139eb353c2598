package model

import (
	"sort"
	"sync"
	"time"
)

// RunSummary aggregates the outcome of one crawl run.
// Counter updates are safe for concurrent use by workers.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name,omitempty"`
	Seeds     []string  `json:"seeds"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Cancelled bool      `json:"cancelled"`

	// Error is set when the run ended on a fatal error.
	Error string `json:"error,omitempty"`

	Enqueued     int `json:"enqueued"`
	Rejected     int `json:"rejected"`
	Deduplicated int `json:"deduplicated"`
	Retried      int `json:"retried"`
	Deferred     int `json:"deferred"`

	ByStatus map[Status]int `json:"by_status"`
	ByDomain map[string]int `json:"by_domain"`

	mu sync.Mutex
}

// NewRunSummary creates an empty summary for the given run.
func NewRunSummary(runID string, seeds []string) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Seeds:     append([]string(nil), seeds...),
		StartedAt: time.Now().UTC(),
		ByStatus:  make(map[Status]int),
		ByDomain:  make(map[string]int),
	}
}

// AddRecord counts a terminal record.
func (s *RunSummary) AddRecord(r *FetchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ByStatus[r.Status]++
	s.ByDomain[r.Domain]++
}

// Counter names one of the flow counters of a RunSummary.
type Counter int

const (
	CounterEnqueued Counter = iota
	CounterRejected
	CounterDeduplicated
	CounterRetried
	CounterDeferred
)

// Inc increments a flow counter.
func (s *RunSummary) Inc(c Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c {
	case CounterEnqueued:
		s.Enqueued++
	case CounterRejected:
		s.Rejected++
	case CounterDeduplicated:
		s.Deduplicated++
	case CounterRetried:
		s.Retried++
	case CounterDeferred:
		s.Deferred++
	}
}

// Finish stamps the end time.
func (s *RunSummary) Finish(cancelled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndedAt = time.Now().UTC()
	s.Cancelled = cancelled
	if err != nil {
		s.Error = err.Error()
	}
}

// Total returns the number of terminal records.
func (s *RunSummary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.ByStatus {
		total += n
	}
	return total
}

// Count returns the number of records with the given status.
func (s *RunSummary) Count(status Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ByStatus[status]
}

// Duration returns the wall-clock run time.
func (s *RunSummary) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// DomainCount is a (domain, records) pair.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Domains returns per-domain record counts, busiest first.
func (s *RunSummary) Domains() []DomainCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DomainCount, 0, len(s.ByDomain))
	for d, n := range s.ByDomain {
		out = append(out, DomainCount{Domain: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}
