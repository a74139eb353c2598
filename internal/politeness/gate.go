package politeness

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/model"
)

// Gate enforces per-domain politeness. It is safe for concurrent use.
type Gate struct {
	useRobots       bool
	robotsTTL       time.Duration
	honorCrawlDelay bool
	userAgent       string
	requestDelay    time.Duration
	maxRetries      int
	backoffBase     time.Duration
	backoffMax      time.Duration
	maxInFlight     int
	inFlightWait    time.Duration
	perMinute       int

	robots RobotsFetcher
	group  singleflight.Group
	domain *arena
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now. Tests use it to drive the gate deterministically.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a Gate from the crawl settings. robots may be nil when
// crawl.use_robots is off.
func NewGate(cfg *config.Config, robots RobotsFetcher, opts ...Option) *Gate {
	g := &Gate{
		useRobots:       cfg.Crawl.UseRobots && robots != nil,
		robotsTTL:       cfg.Crawl.RobotsTTL.Duration,
		honorCrawlDelay: cfg.Crawl.HonorCrawlDelay,
		userAgent:       cfg.Scraper.UserAgent,
		requestDelay:    cfg.Crawl.RequestDelay.Duration,
		maxRetries:      cfg.Crawl.MaxRetries,
		backoffBase:     cfg.Crawl.BackoffBase.Duration,
		backoffMax:      cfg.Crawl.BackoffMax.Duration,
		maxInFlight:     cfg.Crawl.MaxInFlightPerDomain,
		inFlightWait:    cfg.Crawl.InFlightWait.Duration,
		perMinute:       cfg.Crawl.MaxRequestsPerMinute,
		robots:          robots,
		domain:          newArena(),
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.inFlightWait <= 0 {
		g.inFlightWait = config.DefaultInFlightWait
	}
	return g
}

func (g *Gate) newLimiter() *rate.Limiter {
	if g.perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.perMinute)), 1)
}

func (g *Gate) entry(domain string) *domainEntry {
	return g.domain.getOrCreate(domain, g.newLimiter)
}

// Authorize decides whether task may be fetched now.
// A Ready verdict records the request and takes an in-flight slot, which
// the caller must give back with Release.
func (g *Gate) Authorize(ctx context.Context, task *model.CrawlTask) Decision {
	e := g.entry(task.Domain)

	if g.useRobots && !g.robotsAllowed(ctx, e, task) {
		return blocked(ReasonRobots)
	}

	now := g.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.state

	if now.Before(st.BackoffUntil) {
		return wait(st.BackoffUntil.Sub(now), ReasonBackoff)
	}
	if g.maxInFlight > 0 && st.InFlight >= g.maxInFlight {
		return wait(g.inFlightWait, ReasonInFlight)
	}
	if !st.LastRequest.IsZero() {
		if remaining := g.intervalLocked(st) - now.Sub(st.LastRequest); remaining > 0 {
			return wait(remaining, ReasonInterval)
		}
	}
	if e.limiter != nil {
		r := e.limiter.ReserveN(now, 1)
		if !r.OK() {
			return wait(time.Minute, ReasonRate)
		}
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			return wait(d, ReasonRate)
		}
	}

	st.LastRequest = now
	st.InFlight++
	return ready()
}

// intervalLocked returns the minimum spacing between two fetches.
func (g *Gate) intervalLocked(st *DomainState) time.Duration {
	delay := g.requestDelay
	if g.honorCrawlDelay && st.CrawlDelay > delay {
		delay = st.CrawlDelay
	}
	return delay
}

// robotsAllowed consults the cached rules of the task's origin, loading them
// when missing or stale. Concurrent misses on one origin share a single fetch.
func (g *Gate) robotsAllowed(ctx context.Context, e *domainEntry, task *model.CrawlTask) bool {
	u, err := url.Parse(task.URL)
	if err != nil {
		return true
	}

	data, fresh := g.cachedRobots(e, u.Scheme)
	if !fresh {
		key := u.Scheme + "://" + u.Host
		v, _, _ := g.group.Do(key, func() (any, error) {
			if cached, ok := g.cachedRobots(e, u.Scheme); ok {
				return cached, nil
			}
			return g.loadRobots(ctx, e, u.Scheme, u.Host), nil
		})
		data, _ = v.(*robotstxt.RobotsData)
	}

	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), g.userAgent)
}

// cachedRobots returns the rules cached for scheme and whether they are
// still within robots_ttl.
func (g *Gate) cachedRobots(e *domainEntry, scheme string) (*robotstxt.RobotsData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.robots[scheme]
	if !ok {
		return nil, false
	}
	return c.data, g.now().Sub(c.fetchedAt) < g.robotsTTL
}

func (g *Gate) loadRobots(ctx context.Context, e *domainEntry, scheme, host string) *robotstxt.RobotsData {
	data, err := g.robots.Fetch(ctx, scheme, host)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		g.logger.Debug("robots.txt unavailable, allowing all", "host", host, "error", err)
		data = nil
	}

	var crawlDelay time.Duration
	if data != nil {
		if group := data.FindGroup(g.userAgent); group != nil {
			crawlDelay = group.CrawlDelay
		}
	}

	now := g.now()
	e.mu.Lock()
	if e.robots == nil {
		e.robots = make(map[string]robotsCache)
	}
	e.robots[scheme] = robotsCache{data: data, fetchedAt: now}
	e.state.RobotsFetchedAt = now
	e.state.RobotsAllowAll = data == nil
	e.state.CrawlDelay = crawlDelay
	e.mu.Unlock()

	if crawlDelay > 0 {
		g.logger.Debug("robots.txt crawl-delay", "host", host, "delay", crawlDelay)
	}
	return data
}

// Release gives back the in-flight slot taken by a Ready verdict.
// A successful fetch clears the domain's failure streak.
func (g *Gate) Release(domain string, success bool) {
	e := g.entry(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.InFlight > 0 {
		e.state.InFlight--
	}
	if success {
		e.state.ConsecutiveFailures = 0
	}
}

// RecordFailure accounts for a retryable failure of task.
// It increments task.RetryCount, extends the domain backoff and reports
// whether the task may be retried. A false result means the retry budget
// is spent and the task is terminal.
func (g *Gate) RecordFailure(task *model.CrawlTask) bool {
	task.RetryCount++

	e := g.entry(task.Domain)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.ConsecutiveFailures++
	e.state.BackoffUntil = g.now().Add(g.backoff(e.state.ConsecutiveFailures))

	return task.RetryCount <= g.maxRetries
}

// backoff returns min(base * 2^(failures-1), max).
func (g *Gate) backoff(failures int) time.Duration {
	d := g.backoffBase
	for i := 1; i < failures; i++ {
		if d >= g.backoffMax/2 {
			return g.backoffMax
		}
		d *= 2
	}
	if d > g.backoffMax {
		return g.backoffMax
	}
	return d
}

// ReadyAt returns the earliest instant domain could be authorized.
// Unknown domains are ready immediately (zero time).
func (g *Gate) ReadyAt(domain string) time.Time {
	e, ok := g.domain.get(domain)
	if !ok {
		return time.Time{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := &e.state

	at := st.BackoffUntil
	if !st.LastRequest.IsZero() {
		if next := st.LastRequest.Add(g.intervalLocked(st)); next.After(at) {
			at = next
		}
	}
	if g.maxInFlight > 0 && st.InFlight >= g.maxInFlight {
		if next := g.now().Add(g.inFlightWait); next.After(at) {
			at = next
		}
	}
	return at
}

// BackoffUntil returns the end of the domain's current backoff window.
func (g *Gate) BackoffUntil(domain string) time.Time {
	st, _ := g.State(domain)
	return st.BackoffUntil
}

// State returns a copy of the domain's state.
func (g *Gate) State(domain string) (DomainState, bool) {
	e, ok := g.domain.get(domain)
	if !ok {
		return DomainState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Domains returns every domain seen so far, in no particular order.
func (g *Gate) Domains() []string {
	return g.domain.domains()
}

// MaxRetries returns the retry budget per task.
func (g *Gate) MaxRetries() int {
	return g.maxRetries
}
