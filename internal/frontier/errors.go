package frontier

import "errors"

var (
	// ErrDrained is returned by Next when nothing is queued or in flight.
	ErrDrained = errors.New("frontier drained")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("frontier closed")
)
