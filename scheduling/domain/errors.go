package domain

import "errors"

var (
	ErrScheduleNotFound = errors.New("scheduled content not found")
	ErrMetricsNotFound  = errors.New("queue metrics not found")
	// ErrInvalidTransition is returned when a state change is requested from a
	// state that does not permit it (e.g. completing a row never claimed).
	ErrInvalidTransition = errors.New("invalid queue state transition")
)
