// Package crawler runs a polite, priority-aware, depth-bounded crawl.
//
// # Architecture
//
// A Crawler owns one run. Seeds are normalized by the URL filter and pushed
// into the frontier. A fixed pool of workers (scraper.concurrency) then
// loops over:
//
//  1. take the best ready task from the frontier
//  2. ask the politeness gate; a Wait puts the task back with a not-before
//     time instead of sleeping the worker
//  3. fetch under the per-fetch deadline
//  4. retry through the gate's backoff, or hand the response to the Router
//
// The Router parses HTML once with golang.org/x/net/html, records title,
// snippet and anomaly hints, and feeds links back through the filter at
// depth+1. PDFs go to the text extractor or the PDF store, and CAPTCHA
// pages are handled per captcha.mode.
//
// Every terminal task produces exactly one record on the output sink.
//
// # Shutdown
//
// Cancelling the run context closes the frontier. Fetches already running
// get shutdown_timeout to finish and write their records; nothing is
// re-enqueued. A cancelled run is not an error.
//
// # Usage
//
//	c, err := crawler.New(cfg, sink, crawler.WithLogger(logger))
//	summary, err := c.Run(ctx, []string{"https://example.com/"})
package crawler
