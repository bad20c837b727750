package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("session not found")
	ErrRuleNotFound           = errors.New("rule not found")
	ErrInvalidRange           = errors.New("semester end cannot be before semester start")
	ErrInvalidTimeSlot        = errors.New("start and end do not match a canonical time slot")
	ErrSessionCanceled        = errors.New("session is canceled")
	ErrConcurrentModification = errors.New("session was modified concurrently; retry")
	ErrBulkTimeout            = errors.New("bulk schedule creation exceeded its time budget")
)

// ConflictError carries the full conflict reports of a rejected booking;
// it is returned as a structured result, never swallowed or logged-only.
type ConflictError struct {
	Reports []ConflictReport
}

func NewConflictError(reports ...ConflictReport) error {
	return &ConflictError{Reports: reports}
}

func (e *ConflictError) Error() string {
	var n int
	for _, rep := range e.Reports {
		n += len(rep.Conflicts)
	}
	return fmt.Sprintf("booking rejected: %d conflict(s) detected", n)
}
