package politeness

import (
	"fmt"
	"time"
)

// Verdict is the outcome of Gate.Authorize.
type Verdict int

const (
	// Ready means the fetch may start immediately.
	Ready Verdict = iota
	// Wait means the domain is not available yet.
	Wait
	// Blocked means the URL must not be fetched at all.
	Blocked
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Ready:
		return "ready"
	case Wait:
		return "wait"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ReasonRobots is the Blocked reason for a robots.txt disallow.
const ReasonRobots = "robots"

// Wait reasons, reported for logs and metrics.
const (
	ReasonBackoff  = "backoff"
	ReasonInFlight = "in_flight"
	ReasonInterval = "interval"
	ReasonRate     = "rate"
)

// Decision is the result of an authorization check.
type Decision struct {
	Verdict Verdict

	// Delay is how long to wait before trying again. It is set for Wait only.
	Delay time.Duration

	// Reason explains a Wait or Blocked verdict.
	Reason string
}

func ready() Decision {
	return Decision{Verdict: Ready}
}

func wait(d time.Duration, reason string) Decision {
	return Decision{Verdict: Wait, Delay: d, Reason: reason}
}

func blocked(reason string) Decision {
	return Decision{Verdict: Blocked, Reason: reason}
}
