package model

import "errors"

// Error taxonomy shared by every crawl component.
// Packages wrap these with fmt.Errorf("...: %w", ...) so callers can
// classify failures with errors.Is regardless of where they happened.
var (
	// ErrFilterRejected marks a URL dropped by filtering policy.
	// It is a decision, not a failure, and never reaches the output sink.
	ErrFilterRejected = errors.New("url rejected by filter")

	// ErrRetryableFetch marks a transient fetch failure: network errors,
	// timeouts, 5xx, 408 and 429 responses.
	ErrRetryableFetch = errors.New("retryable fetch failure")

	// ErrPermanentFetch marks a fetch failure that must not be retried:
	// robots disallow, exhausted retry budget, or a 4xx response.
	ErrPermanentFetch = errors.New("permanent fetch failure")

	// ErrCaptchaEncountered marks a CAPTCHA challenge page.
	ErrCaptchaEncountered = errors.New("captcha encountered")

	// ErrConfig marks a malformed or missing configuration parameter.
	// It is fatal at startup, before any fetch begins.
	ErrConfig = errors.New("configuration error")
)
