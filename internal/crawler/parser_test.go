package crawler

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParsePage(t *testing.T) {
	t.Parallel()

	t.Run("extracts title, links and snippet", func(t *testing.T) {
		t.Parallel()

		body := `<html><head><title>  Getting
			Started </title>
			<script>var hidden = "not text";</script>
			<style>.x{}</style></head>
			<body><h1>Docs</h1><p>Welcome to the docs.</p>
			<a href="/a">A</a>
			<a href=" https://example.com/b ">B</a>
			<a href="#top">top</a>
			<a href="mailto:x@example.com">mail</a>
			<a href="JavaScript:void(0)">js</a>
			<a>no href</a>
			<a href="c.html">C</a>
			</body></html>`

		page, err := ParsePage([]byte(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Title != "Getting Started" {
			t.Errorf("expected title %q, got %q", "Getting Started", page.Title)
		}
		if !page.HasTitleTag {
			t.Error("expected HasTitleTag")
		}
		want := []string{"/a", "https://example.com/b", "c.html"}
		if !slices.Equal(page.Links, want) {
			t.Errorf("expected links %v, got %v", want, page.Links)
		}
		if strings.Contains(page.Snippet, "hidden") || strings.Contains(page.Snippet, ".x{}") {
			t.Errorf("expected script and style to be skipped, got %q", page.Snippet)
		}
		if !strings.HasPrefix(page.Snippet, "Getting Started Docs Welcome to the docs.") {
			t.Errorf("unexpected snippet %q", page.Snippet)
		}
	})

	t.Run("snippet is capped", func(t *testing.T) {
		t.Parallel()

		body := "<p>" + strings.Repeat("日本語 ", 200) + "</p>"
		page, err := ParsePage([]byte(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := utf8.RuneCountInString(page.Snippet); n > SnippetLength {
			t.Errorf("expected at most %d characters, got %d", SnippetLength, n)
		}
		if !utf8.ValidString(page.Snippet) {
			t.Error("expected valid UTF-8 snippet")
		}
	})

	t.Run("first title wins", func(t *testing.T) {
		t.Parallel()

		page, err := ParsePage([]byte(`<title>One</title><svg><title>Two</title></svg>`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Title != "One" {
			t.Errorf("expected %q, got %q", "One", page.Title)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		t.Parallel()

		page, err := ParsePage([]byte(`<p>no title here</p>`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.HasTitleTag || page.Title != "" {
			t.Errorf("expected no title, got %q (tag %v)", page.Title, page.HasTitleTag)
		}
	})

	t.Run("base and meta robots", func(t *testing.T) {
		t.Parallel()

		body := `<head><base href="https://cdn.example.com/root/">
			<meta name="Robots" content="NoIndex, NOFOLLOW">
			<meta property="og:title" content="OG"></head>`
		page, err := ParsePage([]byte(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.Base != "https://cdn.example.com/root/" {
			t.Errorf("unexpected base %q", page.Base)
		}
		if !page.NoFollow() || !page.NoIndex() {
			t.Errorf("expected nofollow and noindex, got meta %v", page.MetaTags)
		}
		if page.MetaTags["og:title"] != "OG" {
			t.Errorf("expected og:title, got %v", page.MetaTags)
		}
	})
}

func TestPage_MetaRobots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		content      string
		wantNoFollow bool
		wantNoIndex  bool
	}{
		{name: "empty", content: "", wantNoFollow: false, wantNoIndex: false},
		{name: "nofollow", content: "nofollow", wantNoFollow: true, wantNoIndex: false},
		{name: "noindex", content: "noindex, follow", wantNoFollow: false, wantNoIndex: true},
		{name: "none", content: "none", wantNoFollow: true, wantNoIndex: true},
		{name: "similar word", content: "nofollowing", wantNoFollow: false, wantNoIndex: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &Page{MetaTags: map[string]string{"robots": tt.content}}
			if got := p.NoFollow(); got != tt.wantNoFollow {
				t.Errorf("NoFollow: expected %v, got %v", tt.wantNoFollow, got)
			}
			if got := p.NoIndex(); got != tt.wantNoIndex {
				t.Errorf("NoIndex: expected %v, got %v", tt.wantNoIndex, got)
			}
		})
	}
}

func TestDetectAnomalies(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("content ", 10)

	tests := []struct {
		name string
		page *Page
		body string
		want []string
	}{
		{
			name: "healthy page",
			page: &Page{Title: "Product docs", HasTitleTag: true, Snippet: longText},
			body: "<title>Product docs</title>",
			want: nil,
		},
		{
			name: "short title and snippet",
			page: &Page{Title: "Hi", HasTitleTag: true, Snippet: "short"},
			body: "<title>Hi</title>",
			want: []string{AnomalyShortTitle, AnomalyShortSnippet},
		},
		{
			name: "no title tag",
			page: &Page{Snippet: longText},
			body: "<p>x</p>",
			want: []string{AnomalyShortTitle, AnomalyNoTitleTag},
		},
		{
			name: "404 title",
			page: &Page{Title: "Error 404", HasTitleTag: true, Snippet: longText},
			body: "<title>Error 404</title>",
			want: []string{AnomalyNotFound},
		},
		{
			name: "not found text",
			page: &Page{Title: "Oops page", HasTitleTag: true, Snippet: longText},
			body: "<p>Page NOT FOUND</p>",
			want: []string{AnomalyNotFound},
		},
		{
			name: "noindex",
			page: &Page{Title: "Private area", HasTitleTag: true, Snippet: longText, MetaTags: map[string]string{"robots": "noindex"}},
			body: "",
			want: []string{AnomalyNoIndex},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DetectAnomalies(tt.page, []byte(tt.body))
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
