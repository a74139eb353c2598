package urlfilter

import (
	"github.com/nao1215/politecrawl/internal/model"
	"github.com/nao1215/politecrawl/internal/priority"
)

// Filter turns raw links into scored crawl tasks.
// It holds no mutable state and may be shared by all workers.
type Filter struct {
	rules  *Rules
	scorer *priority.Scorer
}

// New creates a Filter from compiled rules and a scorer.
func New(rules *Rules, scorer *priority.Scorer) *Filter {
	return &Filter{rules: rules, scorer: scorer}
}

// Rules returns the compiled rules.
func (f *Filter) Rules() *Rules {
	return f.rules
}

// NormalizeAndFilter canonicalizes raw (relative to parent), applies the scope
// rules for a link found at depth, and returns the scored task.
// A rejected URL yields a *RejectedError.
func (f *Filter) NormalizeAndFilter(raw, parent, seedDomain string, depth int) (model.CrawlTask, error) {
	u, err := f.rules.Normalize(raw, parent)
	if err != nil {
		return model.CrawlTask{}, err
	}
	canonical := u.String()

	if depth > f.rules.maxDepth {
		return model.CrawlTask{}, reject(canonical, ReasonDepth)
	}
	if matchAnyRegexp(f.rules.exclude, canonical) {
		return model.CrawlTask{}, reject(canonical, ReasonExcludePattern)
	}
	if f.rules.blacklisted(canonical, u.Path) {
		return model.CrawlTask{}, reject(canonical, ReasonBlacklist)
	}
	if !f.rules.whitelisted(canonical, u.Path) {
		return model.CrawlTask{}, reject(canonical, ReasonWhitelist)
	}

	domain := Domain(u)
	if seedDomain == "" {
		seedDomain = domain
	}
	if f.rules.sameDomainOnly && !f.rules.sameScope(domain, seedDomain) {
		return model.CrawlTask{}, reject(canonical, ReasonOffDomain)
	}

	return model.CrawlTask{
		URL:            canonical,
		Depth:          depth,
		Domain:         domain,
		SeedDomain:     seedDomain,
		DiscoveredFrom: parent,
		Priority:       f.scorer.Score(canonical, depth),
	}, nil
}

// Seed builds the depth-0 task for a seed URL. The seed's own domain
// becomes the seed domain of everything discovered from it.
func (f *Filter) Seed(raw string) (model.CrawlTask, error) {
	return f.NormalizeAndFilter(raw, "", "", 0)
}
