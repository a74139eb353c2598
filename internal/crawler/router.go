package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/politecrawl/internal/captcha"
	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/fetcher"
	"github.com/nao1215/politecrawl/internal/metrics"
	"github.com/nao1215/politecrawl/internal/model"
	"github.com/nao1215/politecrawl/internal/ocr"
	"github.com/nao1215/politecrawl/internal/priority"
	"github.com/nao1215/politecrawl/internal/urlfilter"
)

// Enqueuer accepts tasks produced while routing a page.
// The frontier implements it.
type Enqueuer interface {
	Push(task model.CrawlTask) bool
	Requeue(task model.CrawlTask, notBefore time.Time) bool
}

// SolutionApplier makes later requests carry a solved CAPTCHA's cookies and headers.
type SolutionApplier interface {
	ApplySolution(rawURL string, cookies []*http.Cookie, headers map[string]string) error
}

// Router turns fetch results into terminal records and feeds discovered
// links back through the filter.
type Router struct {
	runID     string
	cfg       *config.Config
	filter    *urlfilter.Filter
	scorer    *priority.Scorer
	enqueue   Enqueuer
	snapshots *captcha.SnapshotWriter
	solver    captcha.Solver
	applier   SolutionApplier
	extractor ocr.Extractor
	summary   *model.RunSummary
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// RouterConfig holds the collaborators of a Router.
// Scorer, Solver, Applier, Extractor, Summary and Metrics may be nil.
type RouterConfig struct {
	RunID     string
	Config    *config.Config
	Filter    *urlfilter.Filter
	Scorer    *priority.Scorer
	Enqueuer  Enqueuer
	Solver    captcha.Solver
	Applier   SolutionApplier
	Extractor ocr.Extractor
	Summary   *model.RunSummary
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(rc RouterConfig) *Router {
	r := &Router{
		runID:     rc.RunID,
		cfg:       rc.Config,
		filter:    rc.Filter,
		scorer:    rc.Scorer,
		enqueue:   rc.Enqueuer,
		snapshots: captcha.NewSnapshotWriter(rc.Config.Captcha.SnapshotDir),
		solver:    rc.Solver,
		applier:   rc.Applier,
		extractor: rc.Extractor,
		summary:   rc.Summary,
		metrics:   rc.Metrics,
		logger:    rc.Logger,
	}
	if r.summary == nil {
		r.summary = model.NewRunSummary(rc.RunID, nil)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Terminal builds the record of a task that ends without a routable response.
func (r *Router) Terminal(task model.CrawlTask, status model.Status, cause error) *model.FetchRecord {
	rec := model.NewFetchRecord(r.runID, task, status)
	if cause != nil {
		rec.Error = cause.Error()
	}
	return rec
}

// Route handles a fetch that produced a response. fetchErr is the
// classification returned with it (nil for 2xx and 3xx).
// It returns the terminal record, or nil when the task was requeued.
func (r *Router) Route(ctx context.Context, task model.CrawlTask, res *fetcher.Result, fetchErr error) *model.FetchRecord {
	if res.IsCaptcha {
		return r.routeCaptcha(ctx, task, res)
	}

	rec := r.recordFor(task, res, model.StatusSuccess)
	if fetchErr != nil {
		rec.Status = model.StatusFailed
		rec.Error = fetchErr.Error()
		return rec
	}

	switch rec.PayloadKind {
	case model.PayloadHTML:
		r.routeHTML(task, res, rec)
	case model.PayloadPDF:
		r.routePDF(ctx, res, rec)
	}
	return rec
}

func (r *Router) recordFor(task model.CrawlTask, res *fetcher.Result, status model.Status) *model.FetchRecord {
	rec := model.NewFetchRecord(r.runID, task, status)
	rec.FinalURL = res.FinalURL
	rec.HTTPStatus = res.StatusCode
	rec.ContentType = res.ContentType
	rec.PayloadKind = res.Kind()
	rec.DurationMS = res.Duration.Milliseconds()
	rec.Body = res.Body
	rec.ComputeHash()
	if res.Truncated {
		rec.Anomalies = append(rec.Anomalies, AnomalyTruncated)
	}
	return rec
}

func (r *Router) routeHTML(task model.CrawlTask, res *fetcher.Result, rec *model.FetchRecord) {
	page, err := ParsePage(res.Body)
	if err != nil {
		r.logger.Warn("failed to parse HTML", "url", task.URL, "error", err)
		rec.Error = err.Error()
		return
	}

	rec.Title = page.Title
	rec.Snippet = page.Snippet
	rec.Anomalies = append(rec.Anomalies, DetectAnomalies(page, res.Body)...)

	base := baseURL(res.FinalURL, page.Base)
	links := make([]string, 0, len(page.Links))
	for _, href := range page.Links {
		links = append(links, resolve(base, href))
	}
	rec.Links = links

	if r.cfg.Crawl.UseRobots && page.NoFollow() {
		r.logger.Debug("meta robots nofollow, links not followed", "url", task.URL)
		return
	}
	r.enqueueLinks(task, links)
}

// enqueueLinks filters every link at depth+1 and pushes the survivors.
func (r *Router) enqueueLinks(parent model.CrawlTask, links []string) {
	for _, link := range links {
		child, err := r.filter.NormalizeAndFilter(link, parent.URL, parent.SeedDomain, parent.Depth+1)
		if err != nil {
			reason := "parse"
			var rejected *urlfilter.RejectedError
			if errors.As(err, &rejected) {
				reason = string(rejected.Reason)
			}
			r.summary.Inc(model.CounterRejected)
			r.metrics.ObserveRejected(reason)
			r.logger.Debug("link rejected", "url", link, "reason", reason)
			continue
		}

		if r.enqueue.Push(child) {
			r.summary.Inc(model.CounterEnqueued)
			r.metrics.ObserveEnqueued()
			r.logEnqueued(child)
		} else {
			r.summary.Inc(model.CounterDeduplicated)
		}
	}
}

func (r *Router) logEnqueued(task model.CrawlTask) {
	if r.scorer == nil || !r.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	boosted, penalized := r.scorer.Explain(task.URL)
	r.logger.Debug("link enqueued",
		"url", task.URL,
		"depth", task.Depth,
		"priority", task.Priority,
		"boosted", boosted,
		"penalized", penalized,
	)
}

func (r *Router) routePDF(ctx context.Context, res *fetcher.Result, rec *model.FetchRecord) {
	rec.PDFInfo = ocr.ParseInfo(res.Body)
	if len(rec.PDFInfo) == 0 {
		rec.PDFInfo = nil
	}

	ocrEnabled := r.cfg.PDF.OCREnabled && r.extractor != nil
	if ocrEnabled {
		octx, cancel := context.WithTimeout(ctx, r.cfg.Scraper.Timeout.Duration)
		text, err := r.extractor.ExtractText(octx, res.Body)
		cancel()
		if err != nil {
			r.logger.Warn("PDF text extraction failed", "url", rec.URL, "error", err)
			rec.Anomalies = append(rec.Anomalies, AnomalyExtractText)
		} else {
			rec.Text = text
		}
	}

	if !ocrEnabled || r.cfg.PDF.StoreRaw {
		path, err := storePDF(r.cfg.PDF.StoreDir, rec.ContentHash, res.Body)
		if err != nil {
			r.logger.Error("failed to store PDF", "url", rec.URL, "error", err)
			rec.Error = err.Error()
			return
		}
		rec.Reference = path
	}
}

// storePDF writes body as {dir}/{sha256}.pdf. Identical documents share a file.
func storePDF(dir, hash string, body []byte) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create PDF directory: %w", err)
	}
	path := filepath.Join(dir, hash+".pdf")
	if err := os.WriteFile(path, body, 0600); err != nil {
		return "", fmt.Errorf("failed to write PDF: %w", err)
	}
	return path, nil
}

func (r *Router) routeCaptcha(ctx context.Context, task model.CrawlTask, res *fetcher.Result) *model.FetchRecord {
	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = task.URL
	}
	r.logger.Info("CAPTCHA detected", "url", pageURL, "marker", res.CaptchaMarker, "mode", r.cfg.Captcha.Mode)

	rec := r.recordFor(task, res, model.StatusCaptchaUnsolved)
	rec.Error = fmt.Sprintf("%s: %s", model.ErrCaptchaEncountered, res.CaptchaMarker)

	switch r.cfg.Captcha.Mode {
	case config.CaptchaModeFallback:
		rec.Status = model.StatusCaptcha
		if !r.cfg.Captcha.FallbackEnabled {
			r.logger.Warn("CAPTCHA fallback disabled, no snapshot written", "url", pageURL)
			r.metrics.ObserveCaptcha("skipped")
			return rec
		}
		r.snapshot(pageURL, res.Body, rec)
		r.metrics.ObserveCaptcha("snapshot")
		return rec

	case config.CaptchaModeSolver:
		if r.solve(ctx, task, pageURL, res) {
			r.metrics.ObserveCaptcha("solved")
			return nil
		}
		r.metrics.ObserveCaptcha("unsolved")
		if r.cfg.Captcha.FallbackEnabled {
			r.snapshot(pageURL, res.Body, rec)
		}
		return rec

	default:
		r.metrics.ObserveCaptcha("unsolved")
		return rec
	}
}

// solve asks the solver once per task and requeues the task on success.
func (r *Router) solve(ctx context.Context, task model.CrawlTask, pageURL string, res *fetcher.Result) bool {
	if r.solver == nil || task.CaptchaRetried {
		return false
	}

	sol, err := r.solver.Solve(ctx, captcha.NewChallenge(pageURL, res.CaptchaMarker, res.Body))
	if err != nil {
		r.logger.Warn("CAPTCHA not solved", "url", pageURL, "error", err)
		return false
	}
	if r.applier != nil {
		if err := r.applier.ApplySolution(pageURL, sol.Cookies, sol.Headers); err != nil {
			r.logger.Warn("failed to apply CAPTCHA solution", "url", pageURL, "error", err)
			return false
		}
	}

	task.CaptchaRetried = true
	if !r.enqueue.Requeue(task, time.Time{}) {
		return false
	}
	r.logger.Info("CAPTCHA solved, task requeued", "url", task.URL)
	return true
}

func (r *Router) snapshot(pageURL string, body []byte, rec *model.FetchRecord) {
	path, err := r.snapshots.Write(pageURL, body)
	if err != nil {
		r.logger.Error("failed to write CAPTCHA snapshot", "url", pageURL, "error", err)
		rec.Error = fmt.Sprintf("%s; snapshot: %v", rec.Error, err)
		return
	}
	rec.Reference = path
	r.logger.Info("CAPTCHA snapshot saved", "path", path)
}

// baseURL returns the URL links on a page are relative to.
func baseURL(pageURL, baseHref string) *url.URL {
	page, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	if baseHref == "" {
		return page
	}
	b, err := url.Parse(baseHref)
	if err != nil {
		return page
	}
	return page.ResolveReference(b)
}

// resolve makes href absolute. Unparsable hrefs are returned unchanged and
// rejected later by the filter.
func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}
