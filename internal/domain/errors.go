package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrUnknownTask   = errors.New("unknown task")
	ErrNoSession     = errors.New("no valid session")
)

// SessionError means login failed; the current run must stop before touching contacts.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string { return fmt.Sprintf("session: %v", e.Err) }
func (e *SessionError) Unwrap() error { return e.Err }

// AutomationError is a failed call against the automation collaborator.
type AutomationError struct {
	Op      string
	Contact string
	Err     error
}

func (e *AutomationError) Error() string {
	if e.Contact != "" {
		return fmt.Sprintf("automation %s %q: %v", e.Op, e.Contact, e.Err)
	}
	return fmt.Sprintf("automation %s: %v", e.Op, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// StorageError is a failed history write. It is fatal for the run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// IsFatal reports whether err must end the current run.
func IsFatal(err error) bool {
	var se *SessionError
	var st *StorageError
	return errors.As(err, &se) || errors.As(err, &st)
}
