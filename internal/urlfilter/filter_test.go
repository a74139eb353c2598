package urlfilter

import (
	"errors"
	"testing"

	"github.com/nao1215/politecrawl/internal/config"
	"github.com/nao1215/politecrawl/internal/model"
	"github.com/nao1215/politecrawl/internal/priority"
)

func newTestFilter(t *testing.T, mutate func(*config.Config)) *Filter {
	t.Helper()

	cfg := config.NewConfig()
	if mutate != nil {
		mutate(cfg)
	}
	rules, err := NewRules(cfg)
	if err != nil {
		t.Fatalf("failed to compile rules: %v", err)
	}
	return New(rules, priority.NewScorer(cfg.Priority))
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %v", err)
	}
	return rejected.Reason
}

func TestRules_Normalize(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, nil)

	tests := []struct {
		name   string
		raw    string
		parent string
		want   string
	}{
		{name: "tracking query key is removed", raw: "https://example.com/docs/intro?utm_source=x", want: "https://example.com/docs/intro"},
		{name: "scheme and host are lower-cased", raw: "HTTPS://Example.COM/Path", want: "https://example.com/Path"},
		{name: "fragment is stripped", raw: "https://example.com/a#section", want: "https://example.com/a"},
		{name: "empty path becomes slash", raw: "https://example.com", want: "https://example.com/"},
		{name: "default https port is dropped", raw: "https://example.com:443/a", want: "https://example.com/a"},
		{name: "default http port is dropped", raw: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "non-default port is kept", raw: "http://example.com:8080/a", want: "http://example.com:8080/a"},
		{name: "dot segments are removed", raw: "https://example.com/a/./b/../c", want: "https://example.com/a/c"},
		{name: "trailing slash is kept", raw: "https://example.com/docs/", want: "https://example.com/docs/"},
		{name: "query keys are sorted", raw: "https://example.com/s?b=2&a=1", want: "https://example.com/s?a=1&b=2"},
		{name: "valueless key stays bare", raw: "https://example.com/doc?print", want: "https://example.com/doc?print"},
		{name: "bare and empty values differ", raw: "https://example.com/doc?print&lang=", want: "https://example.com/doc?lang=&print"},
		{name: "repeated keys keep their order", raw: "https://example.com/s?tag=b&a=1&tag=a", want: "https://example.com/s?a=1&tag=b&tag=a"},
		{name: "encoded values stay encoded", raw: "https://example.com/s?q=a+b&x=%2F", want: "https://example.com/s?q=a+b&x=%2F"},
		{name: "ref and session keys are removed", raw: "https://example.com/s?q=go&ref=home&PHPSESSIONID=1", want: "https://example.com/s?q=go"},
		{name: "relative link resolves against parent", raw: "../b", parent: "https://example.com/docs/a/", want: "https://example.com/docs/b"},
		{name: "root-relative link", raw: "/x?y=1", parent: "https://example.com/docs/", want: "https://example.com/x?y=1"},
		{name: "IDN host is converted to punycode", raw: "https://bücher.example/", want: "https://xn--bcher-kva.example/"},
		{name: "userinfo is dropped", raw: "https://user:pw@example.com/", want: "https://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := f.Rules().Normalize(tt.raw, tt.parent)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := u.String(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("query kept when exclude_query is off", func(t *testing.T) {
		t.Parallel()

		f := newTestFilter(t, func(c *config.Config) { c.Crawl.ExcludeQuery = false })
		u, err := f.Rules().Normalize("https://example.com/?utm_source=x", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := u.String(); got != "https://example.com/?utm_source=x" {
			t.Errorf("expected query to be kept, got %s", got)
		}
	})
}

func TestFilter_NormalizeAndFilter(t *testing.T) {
	t.Parallel()

	t.Run("boosted docs URL is canonicalized and scored", func(t *testing.T) {
		t.Parallel()

		f := newTestFilter(t, func(c *config.Config) {
			c.Priority.BoostKeywords = []string{"docs"}
		})
		task, err := f.NormalizeAndFilter("https://example.com/docs/intro?utm_source=x", "https://example.com/", "example.com", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if task.URL != "https://example.com/docs/intro" {
			t.Errorf("expected canonical URL, got %s", task.URL)
		}
		if task.Priority != 110 {
			t.Errorf("expected priority 110, got %d", task.Priority)
		}
		if task.Domain != "example.com" || task.SeedDomain != "example.com" {
			t.Errorf("expected example.com domains, got %s/%s", task.Domain, task.SeedDomain)
		}
		if task.DiscoveredFrom != "https://example.com/" {
			t.Errorf("expected parent to be recorded, got %s", task.DiscoveredFrom)
		}
	})

	tests := []struct {
		name   string
		mutate func(*config.Config)
		raw    string
		seed   string
		depth  int
		want   Reason
	}{
		{name: "mailto is rejected", raw: "mailto:a@example.com", seed: "example.com", want: ReasonScheme},
		{name: "javascript is rejected", raw: "javascript:void(0)", seed: "example.com", want: ReasonScheme},
		{name: "bare fragment is rejected", raw: "#top", seed: "example.com", want: ReasonScheme},
		{name: "ftp is rejected", raw: "ftp://example.com/file", seed: "example.com", want: ReasonScheme},
		{name: "control character does not parse", raw: "https://exa mple.com/\x7f", seed: "example.com", want: ReasonParse},
		{name: "too deep", raw: "https://example.com/a", seed: "example.com", depth: 4, want: ReasonDepth},
		{
			name:   "exclude pattern",
			mutate: func(c *config.Config) { c.Crawl.ExcludePatterns = []string{`\.zip$`} },
			raw:    "https://example.com/a.zip", seed: "example.com", want: ReasonExcludePattern,
		},
		{
			name:   "blacklist path prefix",
			mutate: func(c *config.Config) { c.Crawl.BlacklistPaths = []string{"/login"} },
			raw:    "https://example.com/login", seed: "example.com", want: ReasonBlacklist,
		},
		{
			name:   "blacklist path below prefix",
			mutate: func(c *config.Config) { c.Crawl.BlacklistPaths = []string{"/login"} },
			raw:    "https://example.com/login/reset?x=1", seed: "example.com", want: ReasonBlacklist,
		},
		{
			name:   "blacklist pattern",
			mutate: func(c *config.Config) { c.Crawl.BlacklistPatterns = []string{`/tag/`} },
			raw:    "https://example.com/tag/go", seed: "example.com", want: ReasonBlacklist,
		},
		{
			name: "blacklist wins over whitelist",
			mutate: func(c *config.Config) {
				c.Crawl.WhitelistPaths = []string{"/docs"}
				c.Crawl.BlacklistPaths = []string{"/docs/private"}
			},
			raw: "https://example.com/docs/private/a", seed: "example.com", want: ReasonBlacklist,
		},
		{
			name:   "whitelist miss",
			mutate: func(c *config.Config) { c.Crawl.WhitelistPaths = []string{"/docs"} },
			raw:    "https://example.com/blog", seed: "example.com", want: ReasonWhitelist,
		},
		{
			name:   "whitelist pattern miss",
			mutate: func(c *config.Config) { c.Crawl.WhitelistPatterns = []string{`/docs/`} },
			raw:    "https://example.com/blog", seed: "example.com", want: ReasonWhitelist,
		},
		{name: "other domain", raw: "https://other.org/", seed: "example.com", want: ReasonOffDomain},
		{name: "subdomain without include_subdomains", raw: "https://blog.example.com/", seed: "example.com", want: ReasonOffDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newTestFilter(t, tt.mutate)
			_, err := f.NormalizeAndFilter(tt.raw, "https://example.com/", tt.seed, tt.depth)
			if !errors.Is(err, model.ErrFilterRejected) {
				t.Fatalf("expected ErrFilterRejected, got %v", err)
			}
			if got := reasonOf(t, err); got != tt.want {
				t.Errorf("expected reason %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFilter_PathPrefixSemantics(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, func(c *config.Config) {
		c.Crawl.BlacklistPaths = []string{"/login", "/admin/*", "*.pdf"}
	})

	tests := []struct {
		raw      string
		rejected bool
	}{
		{raw: "https://example.com/login", rejected: true},
		{raw: "https://example.com/login?next=/", rejected: true},
		{raw: "https://example.com/login/sso", rejected: true},
		{raw: "https://example.com/loginfoo", rejected: false},
		{raw: "https://example.com/admin/users", rejected: true},
		{raw: "https://example.com/files/report.pdf", rejected: true},
		{raw: "https://example.com/about", rejected: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			_, err := f.NormalizeAndFilter(tt.raw, "", "example.com", 1)
			if got := err != nil; got != tt.rejected {
				t.Errorf("expected rejected=%v, got err=%v", tt.rejected, err)
			}
		})
	}
}

func TestFilter_IncludeSubdomains(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, func(c *config.Config) { c.Crawl.IncludeSubdomains = true })

	if _, err := f.NormalizeAndFilter("https://blog.example.com/", "", "www.example.com", 1); err != nil {
		t.Errorf("expected subdomain to be in scope, got %v", err)
	}
	if _, err := f.NormalizeAndFilter("https://example.org/", "", "www.example.com", 1); err == nil {
		t.Error("expected other registrable domain to be rejected")
	}
}

func TestFilter_SameDomainOnlyOff(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, func(c *config.Config) { c.Crawl.SameDomainOnly = false })
	task, err := f.NormalizeAndFilter("https://other.org/x", "https://example.com/", "example.com", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.SeedDomain != "example.com" {
		t.Errorf("expected seed domain to be inherited, got %s", task.SeedDomain)
	}
}

func TestFilter_Seed(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, nil)

	task, err := f.Seed("  https://Example.com:443  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.URL != "https://example.com/" {
		t.Errorf("expected https://example.com/, got %s", task.URL)
	}
	if task.SeedDomain != "example.com" {
		t.Errorf("expected seed domain example.com, got %s", task.SeedDomain)
	}
	if !task.IsSeed() {
		t.Error("expected task to be a seed")
	}
	if task.Priority != config.DefaultPriorityBase {
		t.Errorf("expected base priority, got %d", task.Priority)
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	if got := DomainOf("https://Example.com:8443/a"); got != "example.com:8443" {
		t.Errorf("expected example.com:8443, got %s", got)
	}
	if got := DomainOf("://bad"); got != "" {
		t.Errorf("expected empty domain, got %s", got)
	}
}
