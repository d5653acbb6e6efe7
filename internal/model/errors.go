package model

import "errors"

// Gateway error taxonomy. The state machine branches on these instead of
// using exceptions for control flow.
var (
	// ErrNoData marks a transient gateway failure: no usable quote this tick.
	ErrNoData = errors.New("no data")

	// ErrUnresolvable marks an instrument that has no listed security
	// reference for the requested strike/expiry.
	ErrUnresolvable = errors.New("instrument unresolvable")

	// ErrOrderRejected marks an order the broker refused.
	ErrOrderRejected = errors.New("order rejected")
)
