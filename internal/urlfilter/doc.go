// Package urlfilter canonicalizes discovered URLs and applies the crawl
// scope rules to them.
//
// NormalizeAndFilter is a pure function of its inputs and the compiled
// Rules: it either returns a scored model.CrawlTask or a *RejectedError
// naming the first rule that matched. Rules are evaluated in this order:
//
//	parse, scheme, depth, exclude_pattern, blacklist, whitelist, off_domain
//
// so a URL on both the blacklist and the whitelist is always rejected.
package urlfilter
