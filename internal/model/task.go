package model

import (
	"time"
)

// CrawlTask is a unit of fetch work sitting in the frontier.
//
// A task is created when a discovered link survives filtering and lives until
// it is fetched successfully, fails permanently, or is dropped by dedup.
// Retry and politeness state travel with the task instead of living in
// closures, so a task can always be inspected.
type CrawlTask struct {
	// URL is the canonical form produced by the normalizer.
	// It is also the dedup key of the visited set.
	URL string `json:"url"`

	// Depth is the number of link hops from the seed (seed = 0).
	// It never exceeds scraper.max_depth.
	Depth int `json:"depth"`

	// Domain is the lower-cased host (with a non-default port, if any).
	// Politeness state is keyed by this value.
	Domain string `json:"domain"`

	// SeedDomain is the domain of the seed this task descends from.
	// same_domain_only compares against this value.
	SeedDomain string `json:"seed_domain"`

	// DiscoveredFrom is the parent URL. It is empty for seeds.
	DiscoveredFrom string `json:"discovered_from,omitempty"`

	// Priority is the signed score from the priority scorer; higher pops first.
	Priority int `json:"priority"`

	// RetryCount is the number of retryable failures seen so far.
	RetryCount int `json:"retry_count"`

	// CaptchaRetried is set once a solved CAPTCHA has re-queued this task.
	// A second challenge on the same task is terminal.
	CaptchaRetried bool `json:"captcha_retried,omitempty"`

	// NotBefore holds the task back until the given instant.
	// The zero value means ready immediately.
	NotBefore time.Time `json:"-"`

	// Seq is the frontier insertion sequence, used for FIFO tie-breaking.
	Seq uint64 `json:"-"`
}

// IsSeed reports whether the task was created from a seed URL.
func (t *CrawlTask) IsSeed() bool {
	return t.DiscoveredFrom == "" && t.Depth == 0
}
