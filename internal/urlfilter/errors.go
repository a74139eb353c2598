package urlfilter

import (
	"fmt"

	"github.com/nao1215/politecrawl/internal/model"
)

// Reason names the rule that rejected a URL.
type Reason string

// Rejection reasons in evaluation order.
const (
	ReasonParse          Reason = "parse"
	ReasonScheme         Reason = "scheme"
	ReasonDepth          Reason = "depth"
	ReasonExcludePattern Reason = "exclude_pattern"
	ReasonBlacklist      Reason = "blacklist"
	ReasonWhitelist      Reason = "whitelist"
	ReasonOffDomain      Reason = "off_domain"
)

// RejectedError reports why a URL was not admitted to the frontier.
// It matches model.ErrFilterRejected with errors.Is.
type RejectedError struct {
	URL    string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", model.ErrFilterRejected, e.URL, e.Reason)
}

// Unwrap returns model.ErrFilterRejected.
func (e *RejectedError) Unwrap() error {
	return model.ErrFilterRejected
}

func reject(raw string, reason Reason) error {
	return &RejectedError{URL: raw, Reason: reason}
}
