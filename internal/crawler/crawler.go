package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/politecrawl/internal/captcha"
	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/fetcher"
	"github.com/nao1215/politecrawl/internal/frontier"
	"github.com/nao1215/politecrawl/internal/metrics"
	"github.com/nao1215/politecrawl/internal/model"
	"github.com/nao1215/politecrawl/internal/ocr"
	"github.com/nao1215/politecrawl/internal/output"
	"github.com/nao1215/politecrawl/internal/politeness"
	"github.com/nao1215/politecrawl/internal/priority"
	"github.com/nao1215/politecrawl/internal/urlfilter"
)

// ErrNoSeeds is returned by Run when no seed survives filtering.
var ErrNoSeeds = fmt.Errorf("%w: no valid seed URLs", model.ErrConfig)

// Fetcher downloads one URL. *fetcher.Fetcher implements it.
// A result is returned whenever a response arrived, even with an error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// Crawler runs one crawl: seeds in, one record per terminal task out.
// A Crawler is single-use; its visited set lives for exactly one Run.
type Crawler struct {
	cfg      *config.Config
	runID    string
	name     string
	filter   *urlfilter.Filter
	gate     *politeness.Gate
	frontier *frontier.Frontier
	fetcher  Fetcher
	router   *Router
	sink     output.Sink
	summary  *model.RunSummary
	metrics  *metrics.Metrics
	logger   *slog.Logger

	robots    politeness.RobotsFetcher
	solver    captcha.Solver
	extractor ocr.Extractor

	runOnce sync.Once
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) {
		c.metrics = m
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(c *Crawler) {
		c.runID = id
	}
}

// WithName labels the run in its summary, for instance with a batch job description.
func WithName(name string) Option {
	return func(c *Crawler) {
		c.name = name
	}
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) {
		c.fetcher = f
	}
}

// WithRobotsFetcher replaces the robots.txt fetcher.
func WithRobotsFetcher(r politeness.RobotsFetcher) Option {
	return func(c *Crawler) {
		c.robots = r
	}
}

// WithSolver replaces the CAPTCHA solver used in solver mode.
func WithSolver(s captcha.Solver) Option {
	return func(c *Crawler) {
		c.solver = s
	}
}

// WithExtractor replaces the PDF text extractor.
func WithExtractor(e ocr.Extractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}

// New wires a Crawler from a validated configuration. Records are written to sink,
// which the caller owns and closes.
func New(cfg *config.Config, sink output.Sink, opts ...Option) (*Crawler, error) {
	c := &Crawler{
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.New().String()
	}
	c.logger = c.logger.With("run_id", c.runID)

	rules, err := urlfilter.NewRules(cfg)
	if err != nil {
		return nil, err
	}
	scorer := priority.NewScorer(cfg.Priority)
	c.filter = urlfilter.New(rules, scorer)

	var applier SolutionApplier
	if c.fetcher == nil {
		f, err := fetcher.New(cfg, fetcher.WithLogger(c.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create fetcher: %w", err)
		}
		c.fetcher = f
		if c.robots == nil {
			c.robots = politeness.NewHTTPRobotsFetcher(f.Client(), cfg.Scraper.UserAgent)
		}
	}
	if a, ok := c.fetcher.(SolutionApplier); ok {
		applier = a
	}

	if c.solver == nil && cfg.Captcha.Mode == config.CaptchaModeSolver {
		c.solver = captcha.NewHTTPSolver(cfg.Captcha.SolverEndpoint, nil, cfg.Captcha.SolverTimeout.Duration)
	}
	if c.extractor == nil && cfg.PDF.OCREnabled {
		ext, err := ocr.NewCommandExtractor(cfg.PDF.OCRCommand)
		if err != nil {
			return nil, fmt.Errorf("failed to create text extractor: %w", err)
		}
		if !ext.Available() {
			c.logger.Warn("PDF text extractor not found, OCR disabled", "command", cfg.PDF.OCRCommand[0])
		} else {
			c.extractor = ext
		}
	}

	c.gate = politeness.NewGate(cfg, c.robots, politeness.WithLogger(c.logger))
	c.frontier = frontier.New(cfg.Scraper.MaxDepth, c.gate)
	c.summary = model.NewRunSummary(c.runID, nil)
	c.summary.Name = c.name
	c.router = NewRouter(RouterConfig{
		RunID:     c.runID,
		Config:    cfg,
		Filter:    c.filter,
		Scorer:    scorer,
		Enqueuer:  c.frontier,
		Solver:    c.solver,
		Applier:   applier,
		Extractor: c.extractor,
		Summary:   c.summary,
		Metrics:   c.metrics,
		Logger:    c.logger,
	})
	return c, nil
}

// RunID returns the identifier stamped on every record of the run.
func (c *Crawler) RunID() string {
	return c.runID
}

// Gate returns the politeness gate, for inspection.
func (c *Crawler) Gate() *politeness.Gate {
	return c.gate
}

// Frontier returns the task queue, for inspection.
func (c *Crawler) Frontier() *frontier.Frontier {
	return c.frontier
}

// Run crawls from seeds until the frontier drains, ctx is cancelled, or a
// fatal sink error occurs. The summary is returned in every case.
// A cancelled run is not an error.
func (c *Crawler) Run(ctx context.Context, seeds []string) (*model.RunSummary, error) {
	err := errors.New("crawler: Run called twice")
	c.runOnce.Do(func() {
		err = c.run(ctx, seeds)
	})
	return c.summary, err
}

func (c *Crawler) run(ctx context.Context, seeds []string) error {
	c.summary.Seeds = append([]string(nil), seeds...)
	c.summary.StartedAt = time.Now().UTC()

	if c.enqueueSeeds(seeds) == 0 {
		c.summary.Finish(false, ErrNoSeeds)
		return ErrNoSeeds
	}

	c.logger.Info("crawl started",
		"seeds", len(seeds),
		"concurrency", c.cfg.Scraper.Concurrency,
		"max_depth", c.cfg.Scraper.MaxDepth,
	)

	g, gctx := errgroup.WithContext(ctx)

	// In-flight work outlives cancellation by at most shutdown_timeout.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopWatch := make(chan struct{})
	var watch sync.WaitGroup
	watch.Add(1)
	go func() {
		defer watch.Done()
		select {
		case <-stopWatch:
			return
		case <-gctx.Done():
		}
		c.frontier.Close()
		timer := time.NewTimer(c.cfg.ShutdownTimeout.Duration)
		defer timer.Stop()
		select {
		case <-stopWatch:
		case <-timer.C:
			c.logger.Warn("shutdown timeout reached, cancelling in-flight fetches")
			cancelWork()
		}
	}()

	for range c.cfg.Scraper.Concurrency {
		g.Go(func() error {
			return c.worker(gctx, workCtx)
		})
	}
	err := g.Wait()
	close(stopWatch)
	watch.Wait()

	cancelled := ctx.Err() != nil && err == nil
	c.summary.Finish(cancelled, err)
	if rr, ok := c.sink.(output.RunRecorder); ok {
		if serr := rr.SaveRun(context.WithoutCancel(ctx), c.summary); serr != nil && err == nil && output.IsFatal(serr) {
			err = serr
		}
	}

	c.logger.Info("crawl finished",
		"records", c.summary.Total(),
		"enqueued", c.summary.Enqueued,
		"cancelled", cancelled,
		"duration", c.summary.Duration().Round(time.Millisecond),
	)
	return err
}

// enqueueSeeds admits the seeds and returns how many were enqueued.
func (c *Crawler) enqueueSeeds(seeds []string) int {
	n := 0
	for _, raw := range seeds {
		task, err := c.filter.Seed(raw)
		if err != nil {
			c.summary.Inc(model.CounterRejected)
			c.logger.Warn("seed rejected", "seed", raw, "error", err)
			continue
		}
		if !c.frontier.Push(task) {
			c.summary.Inc(model.CounterDeduplicated)
			continue
		}
		c.summary.Inc(model.CounterEnqueued)
		c.metrics.ObserveEnqueued()
		n++
	}
	return n
}

// worker pulls tasks until the frontier drains or closes. Only fatal sink
// errors are returned.
func (c *Crawler) worker(ctx, workCtx context.Context) error {
	for {
		task, err := c.frontier.Next(ctx)
		if err != nil {
			if errors.Is(err, frontier.ErrDrained) || errors.Is(err, frontier.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.process(workCtx, task)
		c.frontier.Done()
		c.observeQueues()
		if err != nil {
			return err
		}
	}
}

// process handles one popped task. Any Push or Requeue happens before the
// caller marks the task done.
func (c *Crawler) process(ctx context.Context, task model.CrawlTask) error {
	dec := c.gate.Authorize(ctx, &task)
	switch dec.Verdict {
	case politeness.Blocked:
		c.logger.Debug("blocked by robots.txt", "url", task.URL)
		cause := fmt.Errorf("%w: disallowed by robots.txt", model.ErrPermanentFetch)
		return c.emit(ctx, c.router.Terminal(task, model.StatusRobotsBlocked, cause))
	case politeness.Wait:
		c.summary.Inc(model.CounterDeferred)
		c.metrics.ObserveDeferral(dec.Reason)
		c.frontier.Requeue(task, time.Now().Add(dec.Delay))
		return nil
	}

	fctx, cancel := context.WithTimeout(ctx, c.cfg.Scraper.Timeout.Duration)
	start := time.Now()
	res, fetchErr := c.fetcher.Fetch(fctx, task.URL)
	cancel()
	c.observeFetch(res, time.Since(start))

	if ctx.Err() != nil {
		// Cancelled past the shutdown window; the task is abandoned.
		c.gate.Release(task.Domain, false)
		c.logger.Debug("fetch abandoned on shutdown", "url", task.URL)
		return nil
	}

	captchaPage := res != nil && res.IsCaptcha
	if fetchErr != nil && !captchaPage && errors.Is(fetchErr, model.ErrRetryableFetch) {
		retry := c.gate.RecordFailure(&task)
		c.gate.Release(task.Domain, false)
		if retry {
			c.summary.Inc(model.CounterRetried)
			c.metrics.ObserveRetry()
			c.logger.Debug("retrying", "url", task.URL, "retry", task.RetryCount, "error", fetchErr)
			c.frontier.Requeue(task, c.gate.BackoffUntil(task.Domain))
			return nil
		}
		cause := fmt.Errorf("%w: retry budget exhausted after %d attempts: %w", model.ErrPermanentFetch, task.RetryCount, fetchErr)
		task.RetryCount = c.gate.MaxRetries()
		return c.emit(ctx, c.router.Terminal(task, model.StatusRetryExhausted, cause))
	}
	c.gate.Release(task.Domain, true)

	if res == nil {
		return c.emit(ctx, c.router.Terminal(task, model.StatusFailed, fetchErr))
	}
	rec := c.router.Route(ctx, task, res, fetchErr)
	if rec == nil {
		return nil
	}
	return c.emit(ctx, rec)
}

// emit counts a terminal record and hands it to the sink.
func (c *Crawler) emit(ctx context.Context, rec *model.FetchRecord) error {
	c.summary.AddRecord(rec)
	c.metrics.ObserveRecord(string(rec.Status))

	err := c.sink.Write(ctx, rec)
	rec.Body = nil
	if err == nil {
		return nil
	}
	if output.IsFatal(err) {
		c.logger.Error("output sink failed", "error", err)
		return err
	}
	c.logger.Warn("record not written", "url", rec.URL, "error", err)
	return nil
}

func (c *Crawler) observeFetch(res *fetcher.Result, d time.Duration) {
	if c.metrics == nil {
		return
	}
	if res == nil {
		c.metrics.ObserveFetch(0, d, 0)
		return
	}
	c.metrics.ObserveFetch(res.StatusCode, d, len(res.Body))
}

func (c *Crawler) observeQueues() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetFrontier(c.frontier.Len(), c.frontier.InFlight(), c.frontier.Visited())
	c.metrics.SetDomains(len(c.gate.Domains()))
}
