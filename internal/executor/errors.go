package executor

import "errors"

var (
	// ErrWaitTimeout is returned when in-flight runs do not finish within
	// the shutdown grace period.
	ErrWaitTimeout = errors.New("timed out waiting for in-flight runs")
)
