package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/model"
)

// Result is a fetched response.
type Result struct {
	// URL is the requested URL and FinalURL the one after redirects.
	URL      string
	FinalURL string

	StatusCode  int
	Header      http.Header
	ContentType string

	// Body is decompressed, capped and, for HTML, converted to UTF-8.
	Body      []byte
	Truncated bool

	// IsCaptcha is set when the page is a CAPTCHA challenge; CaptchaMarker
	// names the selector or text that matched.
	IsCaptcha     bool
	CaptchaMarker string

	// Proxy is the route used ("direct" without proxies).
	Proxy    string
	Duration time.Duration
}

// Kind classifies the payload.
func (r *Result) Kind() model.PayloadKind {
	return model.PayloadKindOf(r.ContentType, r.FinalURL)
}

// Fetcher issues GET requests through the configured routes.
type Fetcher struct {
	pool    *proxyPool
	jar     http.CookieJar
	inject  *injectConfig
	maxBody int64
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher from the scraper settings and the proxy list.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	headers := make(map[string]string, len(cfg.Scraper.Headers))
	for k, v := range cfg.Scraper.Headers {
		headers[k] = v
	}
	inject := &injectConfig{
		userAgent: cfg.Scraper.UserAgent,
		cookie:    cfg.Scraper.Cookie,
		headers:   headers,
	}
	jar := newCookieJar()

	pool, err := newProxyPool(cfg.Proxies, cfg.Scraper.Timeout.Duration, jar, inject)
	if err != nil {
		return nil, err
	}

	f := &Fetcher{
		pool:    pool,
		jar:     jar,
		inject:  inject,
		maxBody: cfg.Scraper.MaxBodySize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Client returns an HTTP client sharing the fetcher's decoration and first
// route. It is used for robots.txt so that those requests look the same.
func (f *Fetcher) Client() *http.Client {
	return f.pool.routes[0].client
}

// Routes returns the number of configured routes.
func (f *Fetcher) Routes() int {
	return len(f.pool.routes)
}

// Fetch downloads rawURL. A Result is returned whenever a response arrived,
// together with a *StatusError for 4xx and 5xx statuses.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	rt := f.pool.pick()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", model.ErrPermanentFetch, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := rt.client.Do(req) //nolint:gosec // crawling user-selected URLs is the purpose
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, err
		}
		f.logger.Debug("fetch failed", "url", rawURL, "proxy", rt.label, "error", err)
		return nil, retryable(rawURL, err)
	}
	defer resp.Body.Close()

	body, truncated, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"), f.maxBody)
	if err != nil {
		return nil, retryable(rawURL, err)
	}

	res := &Result{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Header:      resp.Header.Clone(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Truncated:   truncated,
		Proxy:       rt.label,
		Duration:    time.Since(start),
	}
	if res.Kind() == model.PayloadHTML {
		res.Body = toUTF8(body, res.ContentType)
		res.IsCaptcha, res.CaptchaMarker = DetectCaptcha(res.Body, res.StatusCode)
	}

	if truncated {
		f.logger.Debug("response body truncated", "url", rawURL, "limit", f.maxBody)
	}
	return res, ClassifyStatus(resp.StatusCode)
}

// ApplySolution makes later requests carry the cookies and headers returned
// by a CAPTCHA solver. Cookies are scoped to rawURL's site through the jar.
func (f *Fetcher) ApplySolution(rawURL string, cookies []*http.Cookie, headers map[string]string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("apply solution: %w", err)
	}
	if len(cookies) > 0 {
		f.jar.SetCookies(u, cookies)
	}
	if len(headers) > 0 {
		f.inject.addHeaders(headers)
	}
	return nil
}
