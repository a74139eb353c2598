// Package captcha handles pages that turned out to be CAPTCHA challenges.
//
// SnapshotWriter keeps a copy of the challenge page for later review and
// Solver hands the challenge to an external solving service. Detection
// itself happens in the fetcher.
package captcha
