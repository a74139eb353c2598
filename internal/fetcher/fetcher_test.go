package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/model"
)

func newTestFetcher(t *testing.T, mutate func(*config.Config)) *Fetcher {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Scraper.Timeout = config.Seconds(5)
	if mutate != nil {
		mutate(cfg)
	}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	return f
}

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("html page", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><head><title>Hello</title></head><body>hi</body></html>"))
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", res.StatusCode)
		}
		if res.Kind() != model.PayloadHTML {
			t.Errorf("expected html payload, got %s", res.Kind())
		}
		if !strings.Contains(string(res.Body), "<title>Hello</title>") {
			t.Errorf("unexpected body %q", res.Body)
		}
		if res.IsCaptcha {
			t.Error("expected no captcha")
		}
		if res.Proxy != "direct" {
			t.Errorf("expected direct route, got %s", res.Proxy)
		}
	})

	t.Run("gzip body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
				t.Errorf("expected gzip to be accepted, got %q", r.Header.Get("Accept-Encoding"))
			}
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte("compressed text"))
			_ = gz.Close()
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(res.Body) != "compressed text" {
			t.Errorf("expected decompressed body, got %q", res.Body)
		}
	})

	t.Run("brotli body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			_, _ = bw.Write([]byte("brotli text"))
			_ = bw.Close()
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(res.Body) != "brotli text" {
			t.Errorf("expected decompressed body, got %q", res.Body)
		}
	})

	t.Run("latin-1 html is converted to utf-8", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<html><body>caf\xe9</body></html>"))
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(string(res.Body), "café") {
			t.Errorf("expected utf-8 body, got %q", res.Body)
		}
	})

	t.Run("body is capped", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
		}))
		defer server.Close()

		f := newTestFetcher(t, func(c *config.Config) { c.Scraper.MaxBodySize = 10 })
		res, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Body) != 10 || !res.Truncated {
			t.Errorf("expected 10 truncated bytes, got %d (truncated=%v)", len(res.Body), res.Truncated)
		}
	})

	t.Run("headers cookie and user agent are injected", func(t *testing.T) {
		t.Parallel()

		var (
			mu  sync.Mutex
			got http.Header
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			got = r.Header.Clone()
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		f := newTestFetcher(t, func(c *config.Config) {
			c.Scraper.UserAgent = "politecrawl-test/1.0"
			c.Scraper.Headers = map[string]string{"X-Trace": "abc"}
			c.Scraper.Cookie = "lang=en"
		})
		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if got.Get("User-Agent") != "politecrawl-test/1.0" {
			t.Errorf("expected user agent, got %q", got.Get("User-Agent"))
		}
		if got.Get("X-Trace") != "abc" {
			t.Errorf("expected X-Trace header, got %q", got.Get("X-Trace"))
		}
		if got.Get("Cookie") != "lang=en" {
			t.Errorf("expected cookie, got %q", got.Get("Cookie"))
		}
	})

	t.Run("captcha page is flagged", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<html><body><div class="g-recaptcha" data-sitekey="x"></div></body></html>`))
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if res == nil {
			t.Fatalf("expected a result, got error %v", err)
		}
		if !res.IsCaptcha || res.CaptchaMarker != ".g-recaptcha" {
			t.Errorf("expected captcha via .g-recaptcha, got %v %q", res.IsCaptcha, res.CaptchaMarker)
		}
		if !errors.Is(err, model.ErrPermanentFetch) {
			t.Errorf("expected 403 to be permanent, got %v", err)
		}
	})
}

func TestFetcher_Errors(t *testing.T) {
	t.Parallel()

	t.Run("5xx is retryable with a result", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		res, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if !errors.Is(err, model.ErrRetryableFetch) {
			t.Errorf("expected ErrRetryableFetch, got %v", err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected *StatusError with 503, got %v", err)
		}
		if res == nil || res.StatusCode != http.StatusServiceUnavailable {
			t.Error("expected result with the status code")
		}
	})

	t.Run("404 is permanent", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		_, err := newTestFetcher(t, nil).Fetch(context.Background(), server.URL)
		if !errors.Is(err, model.ErrPermanentFetch) {
			t.Errorf("expected ErrPermanentFetch, got %v", err)
		}
	})

	t.Run("connection refused is retryable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		_, err := newTestFetcher(t, nil).Fetch(context.Background(), addr)
		if !errors.Is(err, model.ErrRetryableFetch) {
			t.Errorf("expected ErrRetryableFetch, got %v", err)
		}
	})

	t.Run("deadline is retryable", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := newTestFetcher(t, nil).Fetch(ctx, server.URL)
		if !errors.Is(err, model.ErrRetryableFetch) {
			t.Errorf("expected ErrRetryableFetch, got %v", err)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded in chain, got %v", err)
		}
	})
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusMovedPermanently, nil},
		{http.StatusRequestTimeout, model.ErrRetryableFetch},
		{http.StatusTooManyRequests, model.ErrRetryableFetch},
		{http.StatusInternalServerError, model.ErrRetryableFetch},
		{http.StatusBadGateway, model.ErrRetryableFetch},
		{http.StatusBadRequest, model.ErrPermanentFetch},
		{http.StatusForbidden, model.ErrPermanentFetch},
		{http.StatusGone, model.ErrPermanentFetch},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			t.Parallel()

			err := ClassifyStatus(tt.code)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetcher_ProxyRotation(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits []string
	)
	newProxy := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits = append(hits, name)
			mu.Unlock()
			if r.URL.Host != "crawl.test" {
				t.Errorf("expected absolute request for crawl.test, got %s", r.URL)
			}
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(name))
		}))
	}
	a := newProxy("a")
	defer a.Close()
	b := newProxy("b")
	defer b.Close()

	f := newTestFetcher(t, func(c *config.Config) {
		c.Proxies = []string{a.URL, b.URL}
	})
	if f.Routes() != 2 {
		t.Fatalf("expected 2 routes, got %d", f.Routes())
	}

	var bodies []string
	for i := 0; i < 4; i++ {
		res, err := f.Fetch(context.Background(), "http://crawl.test/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		bodies = append(bodies, string(res.Body))
	}
	if got := strings.Join(bodies, ""); got != "abab" {
		t.Errorf("expected round-robin abab, got %s", got)
	}
}

func TestNew_UnsupportedProxy(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Proxies = []string{"ftp://proxy:21"}
	if _, err := New(cfg); !errors.Is(err, ErrUnsupportedProxy) {
		t.Errorf("expected ErrUnsupportedProxy, got %v", err)
	}
}

func TestNew_Socks5Proxy(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.Proxies = []string{"socks5://user:pw@127.0.0.1:9050"}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Routes() != 1 {
		t.Errorf("expected 1 route, got %d", f.Routes())
	}
}

func TestFetcher_ApplySolution(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		cookies []string
		tokens  []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		tokens = append(tokens, r.Header.Get("X-Captcha-Token"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newTestFetcher(t, nil)
	if _, err := f.Fetch(context.Background(), server.URL+"/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := f.ApplySolution(server.URL+"/a",
		[]*http.Cookie{{Name: "cf_clearance", Value: "ok", Path: "/"}},
		map[string]string{"X-Captcha-Token": "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Fetch(context.Background(), server.URL+"/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if cookies[0] != "" || tokens[0] != "" {
		t.Errorf("expected no solution on first request, got %q %q", cookies[0], tokens[0])
	}
	if !strings.Contains(cookies[1], "cf_clearance=ok") {
		t.Errorf("expected clearance cookie, got %q", cookies[1])
	}
	if tokens[1] != "t1" {
		t.Errorf("expected solver header, got %q", tokens[1])
	}
}

func TestDetectCaptcha(t *testing.T) {
	t.Parallel()

	docsNav := `<nav><a href="/">Home</a><a href="/guide">Guide</a><a href="/api">API</a><a href="/blog">Blog</a></nav>`

	tests := []struct {
		name       string
		html       string
		status     int
		want       bool
		wantMarker string
	}{
		{name: "recaptcha widget", html: `<div class="g-recaptcha"></div>`, status: http.StatusOK, want: true, wantMarker: ".g-recaptcha"},
		{name: "hcaptcha iframe", html: `<iframe src="https://newassets.hcaptcha.com/captcha"></iframe>`, status: http.StatusOK, want: true},
		{name: "turnstile", html: `<div class="cf-turnstile"></div>`, status: http.StatusForbidden, want: true},
		{name: "challenge form on any page", html: docsNav + `<form id="challenge-form"></form>`, status: http.StatusOK, want: true, wantMarker: "#challenge-form"},
		{name: "cloudflare interstitial title", html: `<title>Just a moment...</title><body>Checking your browser before accessing</body>`, status: http.StatusOK, want: true, wantMarker: "just a moment"},
		{name: "marker in body on 503", html: `<body>Checking your browser before accessing</body>`, status: http.StatusServiceUnavailable, want: true, wantMarker: "checking your browser"},
		{name: "loader script on 429", html: `<script src="https://www.google.com/recaptcha/api.js"></script>`, status: http.StatusTooManyRequests, want: true},
		{name: "plain article", html: `<title>Docs</title><body><p>Welcome</p></body>`, status: http.StatusOK, want: false},
		{
			name:   "page loading invisible recaptcha",
			html:   `<title>Getting started</title><script src="https://www.google.com/recaptcha/api.js?render=sitekey"></script>` + docsNav + `<p>Install the package.</p>`,
			status: http.StatusOK,
			want:   false,
		},
		{
			name:   "thin page loading invisible recaptcha",
			html:   `<title>Contact</title><script src="https://www.google.com/recaptcha/api.js?render=sitekey"></script><p>Write to us.</p>`,
			status: http.StatusOK,
			want:   false,
		},
		{
			name:   "blog post mentioning a marker",
			html:   `<title>Attention required: new release</title>` + docsNav + `<p>Attention required: new release is out.</p>`,
			status: http.StatusOK,
			want:   false,
		},
		{
			name:   "comment form widget on a content page",
			html:   `<title>Post</title>` + docsNav + `<article>` + strings.Repeat("Long article text. ", 60) + `</article><div class="g-recaptcha"></div>`,
			status: http.StatusOK,
			want:   false,
		},
		{
			name:   "large page mentioning captcha text is not flagged",
			html:   "<body>" + strings.Repeat("lorem ipsum ", 5000) + "verify you are human</body>",
			status: http.StatusForbidden,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, marker := DetectCaptcha([]byte(tt.html), tt.status)
			if got != tt.want {
				t.Errorf("expected %v, got %v (marker %q)", tt.want, got, marker)
			}
			if tt.wantMarker != "" && marker != tt.wantMarker {
				t.Errorf("expected marker %q, got %q", tt.wantMarker, marker)
			}
		})
	}
}
