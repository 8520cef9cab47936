package docmodel

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a conversion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ErrIllegalTransition is returned when a transition is not part of the
// pending -> processing -> completed|failed lifecycle.
var ErrIllegalTransition = errors.New("illegal status transition")

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// CheckTransition validates a transition and the fields the target state
// requires on doc (after the caller applied its mutation).
func CheckTransition(doc *Document, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	switch to {
	case StatusFailed:
		if doc.Error == "" {
			return fmt.Errorf("%w: failed document %s needs an error message", ErrIllegalTransition, doc.ID)
		}
		if doc.Markdown != "" {
			return fmt.Errorf("%w: failed document %s must not carry markdown", ErrIllegalTransition, doc.ID)
		}
	case StatusCompleted:
		if doc.Markdown == "" {
			return fmt.Errorf("%w: completed document %s has no markdown", ErrIllegalTransition, doc.ID)
		}
	}
	return nil
}
