package trial

import "errors"

var (
	// ErrBookingFailed wraps a booking gateway failure. The record stays in booking so
	// the next turn retries.
	ErrBookingFailed = errors.New("trial: booking failed")
	// ErrStepLimit means the router kept transitioning without settling on a stage.
	ErrStepLimit = errors.New("trial: too many stage transitions in one turn")
)
