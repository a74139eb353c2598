// Package main provides the entry point for the politecrawl CLI.
//
// politecrawl is a polite, priority-aware, depth-bounded web crawler.
// It honors robots.txt and per-domain request delays, retries transient
// failures with backoff, and writes one record per crawled URL.
//
// Usage:
//
//	politecrawl run https://example.com/
//	politecrawl run --batch jobs.yaml
//	politecrawl stats
//
// See --help for all available options.
package main

// main is the entry point for politecrawl.
func main() {
	Execute()
}
