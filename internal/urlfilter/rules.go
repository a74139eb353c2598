package urlfilter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/nao1215/politecrawl/internal/config"
)

// Rules is the compiled, read-only form of the crawl scope settings.
type Rules struct {
	maxDepth          int
	sameDomainOnly    bool
	includeSubdomains bool
	excludeQuery      bool
	excludeQueryKeys  []string

	whitelistPaths []string
	blacklistPaths []string

	exclude   []*regexp.Regexp
	whitelist []*regexp.Regexp
	blacklist []*regexp.Regexp
}

// NewRules compiles the filter rules from cfg.
// Patterns have already been checked by config.Validate, so an error here
// means the configuration was not validated.
func NewRules(cfg *config.Config) (*Rules, error) {
	r := &Rules{
		maxDepth:          cfg.Scraper.MaxDepth,
		sameDomainOnly:    cfg.Crawl.SameDomainOnly,
		includeSubdomains: cfg.Crawl.IncludeSubdomains,
		excludeQuery:      cfg.Crawl.ExcludeQuery,
		whitelistPaths:    cleanPrefixes(cfg.Crawl.WhitelistPaths),
		blacklistPaths:    cleanPrefixes(cfg.Crawl.BlacklistPaths),
	}
	for _, k := range cfg.Crawl.ExcludeQueryKeys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.excludeQueryKeys = append(r.excludeQueryKeys, k)
		}
	}

	var err error
	if r.exclude, err = compileAll(cfg.Crawl.ExcludePatterns); err != nil {
		return nil, err
	}
	if r.whitelist, err = compileAll(cfg.Crawl.WhitelistPatterns); err != nil {
		return nil, err
	}
	if r.blacklist, err = compileAll(cfg.Crawl.BlacklistPatterns); err != nil {
		return nil, err
	}
	return r, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", config.ErrInvalidPattern, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func cleanPrefixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "*") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}

func (r *Rules) blacklisted(canonical, urlPath string) bool {
	return matchAnyPrefix(r.blacklistPaths, urlPath) || matchAnyRegexp(r.blacklist, canonical)
}

func (r *Rules) whitelisted(canonical, urlPath string) bool {
	if len(r.whitelistPaths) == 0 && len(r.whitelist) == 0 {
		return true
	}
	return matchAnyPrefix(r.whitelistPaths, urlPath) || matchAnyRegexp(r.whitelist, canonical)
}

func matchAnyRegexp(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func matchAnyPrefix(prefixes []string, urlPath string) bool {
	for _, p := range prefixes {
		if matchPrefix(p, urlPath) {
			return true
		}
	}
	return false
}

// matchPrefix reports whether urlPath falls under prefix.
//
//   - "/login" matches "/login" and "/login/x" but not "/loginfoo"
//   - "/docs/" matches everything below "/docs/"
//   - "/admin/*", "*.pdf" and "/api/v?" are glob patterns
func matchPrefix(prefix, urlPath string) bool {
	if strings.ContainsAny(prefix, "*?[") {
		return matchGlob(prefix, urlPath)
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(urlPath, prefix)
	}
	return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
}

func matchGlob(pattern, urlPath string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(urlPath, prefix+"/") || urlPath == prefix {
			return true
		}
	}
	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(urlPath, strings.TrimPrefix(pattern, "*")) {
		return true
	}
	if matched, err := path.Match(pattern, urlPath); err == nil && matched {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(urlPath)); err == nil && matched {
			return true
		}
	}
	return false
}
