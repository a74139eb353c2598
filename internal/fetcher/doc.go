// Package fetcher performs the HTTP requests of a crawl.
//
// A Fetcher owns one http.Client per configured proxy (or a single direct
// client) and rotates between them round-robin. Every request carries the
// configured user agent, extra headers and cookie; cookies set by servers or
// by a CAPTCHA solution are kept in a jar shared by all clients.
//
// Bodies are decompressed (gzip, deflate, br), capped at the configured size
// and, for HTML, converted to UTF-8. HTML responses are also checked for
// CAPTCHA challenge pages.
//
// Errors are classified against the model taxonomy: network failures,
// timeouts, 408, 429 and 5xx wrap model.ErrRetryableFetch; any other 4xx
// wraps model.ErrPermanentFetch.
package fetcher
