package crawler

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// SnippetLength is the number of characters of visible text kept as a preview.
const SnippetLength = 300

// skippedHrefPrefixes are link targets that never lead to a fetchable page.
var skippedHrefPrefixes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Page is the information extracted from one HTML document.
type Page struct {
	// Title is the text of the first <title> element.
	Title string

	// HasTitleTag is false when the document has no <title> element at all.
	HasTitleTag bool

	// Snippet is the first SnippetLength characters of visible text.
	Snippet string

	// Links are the raw href values of <a> elements in document order.
	// They are resolved later by the URL filter against the page URL.
	Links []string

	// Base is the href of a <base> element, if any.
	Base string

	// MetaTags maps meta name (or property) to content.
	MetaTags map[string]string
}

// NoFollow reports whether the page asks crawlers not to follow its links.
func (p *Page) NoFollow() bool {
	return metaRobotsHas(p.MetaTags, "nofollow")
}

// NoIndex reports whether the page asks crawlers not to index it.
func (p *Page) NoIndex() bool {
	return metaRobotsHas(p.MetaTags, "noindex")
}

func metaRobotsHas(meta map[string]string, directive string) bool {
	for _, key := range []string{"robots", "politecrawl"} {
		for _, d := range strings.Split(meta[key], ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == directive || d == "none" {
				return true
			}
		}
	}
	return false
}

// ParsePage parses an HTML body (already UTF-8) in a single pass.
func ParsePage(body []byte) (*Page, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	page := &Page{
		Links:    make([]string, 0),
		MetaTags: make(map[string]string),
	}
	var text textCollector

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
			processElement(n, page)
		case html.TextNode:
			text.add(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.Snippet = text.String()
	return page, nil
}

func processElement(n *html.Node, page *Page) {
	switch n.Data {
	case "title":
		if page.HasTitleTag {
			return
		}
		page.HasTitleTag = true
		page.Title = strings.Join(strings.Fields(nodeText(n)), " ")

	case "a":
		if href := cleanHref(getAttr(n, "href")); href != "" {
			page.Links = append(page.Links, href)
		}

	case "base":
		if page.Base == "" {
			page.Base = strings.TrimSpace(getAttr(n, "href"))
		}

	case "meta":
		name := getAttr(n, "name")
		if name == "" {
			name = getAttr(n, "property") // OpenGraph uses property
		}
		content := getAttr(n, "content")
		if name != "" && content != "" {
			page.MetaTags[strings.ToLower(name)] = content
		}
	}
}

// cleanHref drops empty, fragment-only and non-navigational targets.
func cleanHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, p := range skippedHrefPrefixes {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	return href
}

// nodeText concatenates the text children of n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textCollector gathers whitespace-collapsed visible text up to SnippetLength runes.
type textCollector struct {
	b     strings.Builder
	runes int
}

func (t *textCollector) add(s string) {
	for _, word := range strings.Fields(s) {
		if t.runes >= SnippetLength {
			return
		}
		if t.b.Len() > 0 {
			t.b.WriteByte(' ')
			t.runes++
		}
		for _, r := range word {
			if t.runes >= SnippetLength {
				return
			}
			t.b.WriteRune(r)
			t.runes++
		}
	}
}

func (t *textCollector) String() string {
	s := t.b.String()
	if utf8.RuneCountInString(s) > SnippetLength {
		s = string([]rune(s)[:SnippetLength])
	}
	return strings.TrimSpace(s)
}
