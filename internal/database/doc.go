// Package database provides SQLite-based storage for crawl results.
//
// CrawlDB stores:
//   - one row per terminal fetch record, keyed by run and URL
//   - one row per crawl run with its summary
//
// SQLite (via modernc.org/sqlite) keeps the results in a single CGO-free
// file that the "stats" command can read back after the crawl.
package database
