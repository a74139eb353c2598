// Package output writes fetch records to their final destination.
//
// Four backends implement Sink: CSV, JSON Lines, a JSON array and the
// SQLite records table. Workers never write to a backend directly; New
// wraps the selected backend in Async, which decouples the crawl from
// slow disks and turns a stalled or failing backend into the fatal
// ErrSinkUnwritable.
package output
