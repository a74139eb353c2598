package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/temoto/robotstxt"
)

// maxRobotsBodyBytes limits the size of robots.txt responses we will read.
const maxRobotsBodyBytes = 512 * 1024

// RobotsFetcher loads the robots.txt of one host.
// An error makes the Gate fail open for that host until the TTL expires.
type RobotsFetcher interface {
	Fetch(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error)
}

// HTTPRobotsFetcher fetches robots.txt over HTTP with the crawl's client,
// so proxies and headers apply to it as well.
type HTTPRobotsFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPRobotsFetcher creates a robots fetcher.
func NewHTTPRobotsFetcher(client *http.Client, userAgent string) *HTTPRobotsFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRobotsFetcher{client: client, userAgent: userAgent}
}

// Fetch downloads and parses scheme://host/robots.txt.
// A 4xx response allows everything; a 5xx response is returned as an error.
func (f *HTTPRobotsFetcher) Fetch(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("robots: create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req) //nolint:gosec // URL is derived from the crawl target
	if err != nil {
		return nil, fmt.Errorf("robots: fetch %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("robots: %s returned status %d", robotsURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("robots: read %s: %w", robotsURL, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("robots: parse %s: %w", robotsURL, err)
	}
	return data, nil
}
