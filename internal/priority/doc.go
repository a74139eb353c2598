// Package priority scores crawl tasks.
//
// A score is a signed integer where a higher value is fetched earlier:
//
//	score = base - depth*depth_weight
//	      + boost*(matching boost keywords)
//	      - penalty*(matching penalty keywords)
//	      - long_url_penalty (when the URL is longer than long_url_threshold)
//
// Keywords are matched case-insensitively as substrings of the canonical URL.
// Equal scores are ordered by the frontier, not here.
package priority
