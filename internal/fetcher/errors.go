package fetcher

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nao1215/politecrawl/internal/model"
)

// ErrUnsupportedProxy is returned for a proxy URL with an unknown scheme.
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// StatusError reports a non-success HTTP status.
// It wraps model.ErrRetryableFetch or model.ErrPermanentFetch.
type StatusError struct {
	StatusCode int
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.kind, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap returns the failure class.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// Retryable reports whether the status is worth retrying.
func (e *StatusError) Retryable() bool {
	return errors.Is(e.kind, model.ErrRetryableFetch)
}

// ClassifyStatus maps an HTTP status code to the error taxonomy.
// 2xx and 3xx are not errors. 408, 429 and 5xx are retryable; other 4xx are permanent.
func ClassifyStatus(code int) error {
	switch {
	case code < http.StatusBadRequest:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return &StatusError{StatusCode: code, kind: model.ErrRetryableFetch}
	default:
		return &StatusError{StatusCode: code, kind: model.ErrPermanentFetch}
	}
}

// retryable wraps a transport-level failure.
func retryable(rawURL string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrRetryableFetch, rawURL, err)
}
