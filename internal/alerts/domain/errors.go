package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidSeverity is returned for a severity outside the allowed set.
	ErrInvalidSeverity = errors.New("alert: invalid severity")
	// ErrInvalidTransition is returned when the alert is not in a state that
	// allows the requested action.
	ErrInvalidTransition = errors.New("alert: already handled")
	// ErrInvalidAlert wraps missing or malformed fields.
	ErrInvalidAlert = errors.New("alert: invalid")
)
