// Package model defines the data structures shared by the crawl components.
//
// This package contains the following main types:
//   - CrawlTask: a pending unit of fetch work in the frontier
//   - FetchRecord: the terminal result of a task, handed to output sinks
//   - RunSummary: counters describing one crawl run
//
// It also holds the error taxonomy (ErrFilterRejected, ErrRetryableFetch,
// ErrPermanentFetch, ErrCaptchaEncountered, ErrConfig). Keeping these here
// lets crawler, output and report share them without import cycles.
package model
