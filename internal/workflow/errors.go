package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStaleState             = errors.New("stale state")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInsufficientBalance    = errors.New("insufficient balance")
)

// StaleStateError reports that a record moved on since the caller read it.
// It matches ErrStaleState with errors.Is.
type StaleStateError struct {
	RecordID        string
	ExpectedVersion int
	ActualVersion   int
	ExpectedStatus  string
	ActualStatus    string
}

func (e *StaleStateError) Error() string {
	if e.ExpectedStatus != "" && e.ExpectedStatus != e.ActualStatus {
		return fmt.Sprintf("stale state: record %s is %s, expected %s", e.RecordID, e.ActualStatus, e.ExpectedStatus)
	}
	return fmt.Sprintf("stale state: record %s is at version %d, expected %d", e.RecordID, e.ActualVersion, e.ExpectedVersion)
}

func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}
