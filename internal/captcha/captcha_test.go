package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.FixedZone("JST", 9*60*60))

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "https url", url: "https://example.com/a/b", want: "20240305_050709_example.com_a_b.html"},
		{name: "http url", url: "http://example.com/", want: "20240305_050709_example.com_.html"},
		{name: "query is kept", url: "https://example.com/s?q=1", want: "20240305_050709_example.com_s?q=1.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SnapshotName(ts, tt.url); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("long url is shortened", func(t *testing.T) {
		t.Parallel()
		long := "https://example.com/" + string(make([]byte, 500))
		if got := SnapshotName(ts, long); len(got) > maxNameLen+len("20240305_050709_.html") {
			t.Errorf("expected a bounded name, got %d bytes", len(got))
		}
	})
}

func TestSnapshotWriter_Write(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data", "captcha_logs")
	w := NewSnapshotWriter(dir)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := w.Write("https://example.com/login", []byte("<html>challenge</html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(dir, "20240102_030405_example.com_login.html"); path != want {
		t.Errorf("expected %s, got %s", want, path)
	}
	data, err := os.ReadFile(path) //nolint:gosec // test path
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if string(data) != "<html>challenge</html>" {
		t.Errorf("unexpected snapshot content %q", data)
	}
	if w.Dir() != dir {
		t.Errorf("expected dir %s, got %s", dir, w.Dir())
	}
}

func TestSiteKey(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><form><div class="h-captcha" data-sitekey=" abc-123 "></div></form></body></html>`)
	if got := SiteKey(body); got != "abc-123" {
		t.Errorf("expected abc-123, got %q", got)
	}
	if got := SiteKey([]byte("<p>none</p>")); got != "" {
		t.Errorf("expected empty site key, got %q", got)
	}

	ch := NewChallenge("https://example.com/", ".h-captcha", body)
	if ch.URL != "https://example.com/" || ch.SiteKey != "abc-123" || ch.Marker != ".h-captcha" {
		t.Errorf("unexpected challenge %+v", ch)
	}
}

func TestHTTPSolver_Solve(t *testing.T) {
	t.Parallel()

	t.Run("solved", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			var ch Challenge
			if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
				t.Errorf("failed to decode challenge: %v", err)
			}
			if ch.SiteKey != "k1" {
				t.Errorf("expected site key k1, got %q", ch.SiteKey)
			}
			_, _ = w.Write([]byte(`{"solved":true,"cookies":[{"name":"cf_clearance","value":"ok"},{"name":""}],"headers":{"X-Captcha-Token":"t"}}`))
		}))
		defer server.Close()

		sol, err := NewHTTPSolver(server.URL, server.Client(), 0).Solve(context.Background(), Challenge{URL: "https://x.test/", SiteKey: "k1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sol.Cookies) != 1 || sol.Cookies[0].Name != "cf_clearance" || sol.Cookies[0].Path != "/" {
			t.Errorf("unexpected cookies %+v", sol.Cookies)
		}
		if sol.Headers["X-Captcha-Token"] != "t" {
			t.Errorf("expected solver header, got %v", sol.Headers)
		}
	})

	t.Run("not solved", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"solved":false,"error":"timeout"}`))
		}))
		defer server.Close()

		_, err := NewHTTPSolver(server.URL, server.Client(), 0).Solve(context.Background(), Challenge{URL: "https://x.test/"})
		if !errors.Is(err, ErrUnsolved) {
			t.Errorf("expected ErrUnsolved, got %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewHTTPSolver(server.URL, server.Client(), 0).Solve(context.Background(), Challenge{URL: "https://x.test/"})
		if !errors.Is(err, ErrUnsolved) {
			t.Errorf("expected ErrUnsolved, got %v", err)
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		_, err := NewHTTPSolver(server.URL, nil, time.Second).Solve(context.Background(), Challenge{URL: "https://x.test/"})
		if !errors.Is(err, ErrUnsolved) {
			t.Errorf("expected ErrUnsolved, got %v", err)
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		endpoint := server.URL
		server.Close()

		_, err := NewHTTPSolver(endpoint, nil, time.Second).Solve(context.Background(), Challenge{URL: "https://x.test/"})
		if !errors.Is(err, ErrUnsolved) {
			t.Errorf("expected ErrUnsolved, got %v", err)
		}
	})
}
