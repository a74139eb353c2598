// Package politeness decides when a domain may be fetched.
//
// The Gate keeps one DomainState per host and answers Authorize with one of
// three verdicts:
//
//   - Ready: the fetch may start now; the in-flight slot is taken.
//   - Wait: try again after Decision.Delay; nothing was recorded.
//   - Blocked: robots.txt disallows the URL; the task is terminal.
//
// Checks run in a fixed order: robots, backoff, in-flight cap, minimum
// interval (request_delay or Crawl-delay, whichever is larger), and the
// optional per-minute cap. The Gate never sleeps; callers turn a Wait into
// a re-queue with a not-before time.
//
// Retry accounting lives here too: RecordFailure bumps the task's retry
// count, extends the domain's exponential backoff, and reports whether the
// task may be retried.
package politeness
