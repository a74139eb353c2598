package politeness

import (
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DomainState is a snapshot of the politeness state of one domain.
type DomainState struct {
	Domain string

	// LastRequest is when the last fetch to this domain was authorized.
	LastRequest time.Time

	// RobotsFetchedAt is when a robots.txt of the domain was last loaded
	// (or given up on). http and https rules are cached separately.
	RobotsFetchedAt time.Time

	// RobotsAllowAll is set when robots.txt was missing or unreachable.
	RobotsAllowAll bool

	// CrawlDelay is the Crawl-delay advertised for our user agent.
	CrawlDelay time.Duration

	// BackoffUntil holds the domain back after retryable failures.
	BackoffUntil time.Time

	ConsecutiveFailures int
	InFlight            int
}

// robotsCache holds the rules loaded from one scheme://host origin.
// A nil data means allow all.
type robotsCache struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// domainEntry is the arena slot of one domain. Every field is guarded by mu.
type domainEntry struct {
	mu      sync.Mutex
	state   DomainState
	robots  map[string]robotsCache // keyed by scheme
	limiter *rate.Limiter
}

// arena maps domains to their entries. Entries are created lazily and are
// never removed during a run, so a pointer obtained once stays valid.
type arena struct {
	mu      sync.RWMutex
	entries map[string]*domainEntry
}

func newArena() *arena {
	return &arena{entries: make(map[string]*domainEntry)}
}

func (a *arena) get(domain string) (*domainEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[domain]
	return e, ok
}

func (a *arena) getOrCreate(domain string, newLimiter func() *rate.Limiter) *domainEntry {
	if e, ok := a.get(domain); ok {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[domain]; ok {
		return e
	}
	e := &domainEntry{state: DomainState{Domain: domain}}
	if newLimiter != nil {
		e.limiter = newLimiter()
	}
	a.entries[domain] = e
	return e
}

func (a *arena) domains() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.entries))
	for d := range a.entries {
		out = append(out, d)
	}
	return out
}
