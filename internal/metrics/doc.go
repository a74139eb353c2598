// Package metrics exposes crawl progress as Prometheus metrics.
//
// A Metrics value owns its registry so that several runs (batch jobs,
// tests) never collide on the global default registerer. Every method is
// safe to call on a nil *Metrics, which is how metrics are disabled.
package metrics
