package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// maxRedirects bounds redirect chains.
const maxRedirects = 10

// route is one way out: a proxy (or none) and the client that uses it.
type route struct {
	label  string
	client *http.Client
}

// proxyPool hands out routes round-robin.
type proxyPool struct {
	routes []route
	next   atomic.Uint64
}

func (p *proxyPool) pick() route {
	n := p.next.Add(1) - 1
	return p.routes[n%uint64(len(p.routes))]
}

// newProxyPool builds one client per proxy, or a single direct client when
// proxies is empty. All clients share jar and inject.
func newProxyPool(proxies []string, timeout time.Duration, jar http.CookieJar, inject *injectConfig) (*proxyPool, error) {
	pool := &proxyPool{}
	if len(proxies) == 0 {
		pool.routes = append(pool.routes, route{
			label:  "direct",
			client: newHTTPClient(newBaseTransport(), timeout, jar, inject),
		})
		return pool, nil
	}

	for _, raw := range proxies {
		transport, err := newProxyTransport(raw)
		if err != nil {
			return nil, err
		}
		pool.routes = append(pool.routes, route{
			label:  raw,
			client: newHTTPClient(transport, timeout, jar, inject),
		})
	}
	return pool, nil
}

func newBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		// Content-Encoding is decoded in readBody, which also handles br.
		DisableCompression: true,
	}
}

// newProxyTransport creates a transport that routes through raw.
// http and https proxies use CONNECT; socks5 goes through a SOCKS5 dialer.
func newProxyTransport(raw string) (*http.Transport, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
	}

	transport := newBaseTransport()
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		u.Scheme = "socks5"
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer for %q: %w", u.Host, err)
		}
		transport.DialContext = dialContext(dialer)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, raw)
	}
	return transport, nil
}

// dialContext adapts a proxy.Dialer to DialContext. Dialers that support
// contexts are used directly; others are raced against ctx.
func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func newHTTPClient(base http.RoundTripper, timeout time.Duration, jar http.CookieJar, inject *injectConfig) *http.Client {
	return &http.Client{
		Transport: &headerInjectingTransport{base: base, cfg: inject},
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

func newCookieJar() http.CookieJar {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // cookiejar.New never fails
	return jar
}

// injectConfig is the request decoration shared by every route.
// Solver results may add headers while the crawl runs.
type injectConfig struct {
	mu        sync.RWMutex
	userAgent string
	cookie    string
	headers   map[string]string
}

func (c *injectConfig) addHeaders(h map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range h {
		c.headers[k] = v
	}
}

// headerInjectingTransport adds the configured user agent, headers and
// cookie to every request, redirects included.
type headerInjectingTransport struct {
	base http.RoundTripper
	cfg  *injectConfig
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	t.cfg.mu.RLock()
	if t.cfg.userAgent != "" {
		clone.Header.Set("User-Agent", t.cfg.userAgent)
	}
	if t.cfg.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cfg.cookie)
		} else {
			clone.Header.Set("Cookie", t.cfg.cookie)
		}
	}
	for key, value := range t.cfg.headers {
		clone.Header.Set(key, value)
	}
	t.cfg.mu.RUnlock()

	return t.base.RoundTrip(clone)
}
