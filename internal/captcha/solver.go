package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsolved is returned when a challenge could not be solved.
var ErrUnsolved = errors.New("captcha unsolved")

// Challenge describes a CAPTCHA page handed to a solver.
type Challenge struct {
	URL     string `json:"url"`
	SiteKey string `json:"site_key,omitempty"`
	// Marker is the selector or text that identified the page.
	Marker string `json:"marker,omitempty"`
}

// Solution is what a solver returns: cookies and headers that let the next
// request through.
type Solution struct {
	Cookies []*http.Cookie
	Headers map[string]string
}

// Solver solves CAPTCHA challenges.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (Solution, error)
}

// NewChallenge builds a Challenge from a detected page, extracting the
// widget site key when one is present.
func NewChallenge(rawURL, marker string, body []byte) Challenge {
	return Challenge{URL: rawURL, SiteKey: SiteKey(body), Marker: marker}
}

// SiteKey returns the data-sitekey of the first CAPTCHA widget in body.
func SiteKey(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	key, _ := doc.Find("[data-sitekey]").First().Attr("data-sitekey")
	return strings.TrimSpace(key)
}

// HTTPSolver posts challenges as JSON to a solving service.
//
// Request:  {"url": "...", "site_key": "...", "marker": "..."}
// Response: {"solved": true, "cookies": [{"name": "...", "value": "..."}], "headers": {"...": "..."}}
type HTTPSolver struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSolver creates a solver for endpoint. A nil client gets one with
// the given timeout.
func NewHTTPSolver(endpoint string, client *http.Client, timeout time.Duration) *HTTPSolver {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSolver{endpoint: endpoint, client: client}
}

type solverCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

type solverResponse struct {
	Solved  bool              `json:"solved"`
	Cookies []solverCookie    `json:"cookies"`
	Headers map[string]string `json:"headers"`
	Error   string            `json:"error"`
}

// Solve implements Solver.
func (s *HTTPSolver) Solve(ctx context.Context, ch Challenge) (Solution, error) {
	payload, err := json.Marshal(ch)
	if err != nil {
		return Solution{}, fmt.Errorf("failed to encode challenge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Solution{}, fmt.Errorf("failed to build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Solution{}, fmt.Errorf("%w: %w", ErrUnsolved, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Solution{}, fmt.Errorf("%w: solver returned HTTP %d", ErrUnsolved, resp.StatusCode)
	}

	var out solverResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Solution{}, fmt.Errorf("%w: decode solver response: %w", ErrUnsolved, err)
	}
	if !out.Solved {
		if out.Error != "" {
			return Solution{}, fmt.Errorf("%w: %s", ErrUnsolved, out.Error)
		}
		return Solution{}, ErrUnsolved
	}

	sol := Solution{Headers: out.Headers}
	for _, c := range out.Cookies {
		if c.Name == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		sol.Cookies = append(sol.Cookies, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: path})
	}
	return sol, nil
}
