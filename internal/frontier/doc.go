// Package frontier holds the crawl tasks waiting to be fetched.
//
// Tasks are kept in one priority heap per domain, ordered by priority
// (highest first) and then by insertion sequence, so equal priorities are
// served first-in first-out. The frontier also owns the visited set: the
// dedup check and the enqueue happen under one lock, so a URL is admitted
// at most once per run.
//
// Workers call Next, which blocks until some domain is ready according to
// the Readiness source (the politeness gate) and the task's own not-before
// time. Next returns ErrDrained once no task is queued and none is in
// flight, which is the end of a crawl.
package frontier
