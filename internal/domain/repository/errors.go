package repository

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by repository implementations. Callers classify with
// errors.Is; the scheduler's recovery path depends on the distinction
// between ErrConnection (reconnect) and ErrDatabase (log and continue).
var (
	// ErrConnection marks transient storage faults (SQLSTATE class 08,
	// broken sockets). The scheduler reconnects and restarts workers.
	ErrConnection = errors.New("database connection error")

	// ErrDatabase marks non-transient storage faults.
	ErrDatabase = errors.New("database error")

	// ErrNotFound means the referenced task identity does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrSerialization means persisted params could not be decoded.
	ErrSerialization = errors.New("params serialization error")

	// ErrInvalidTransition means a status precondition was violated, e.g.
	// completing a task whose latest status is not running.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NotRunnableError describes a transition attempted on a task whose latest
// status forbids it. No repository operation in this module returns it: the
// claim guard silently drops tasks that are no longer runnable.
type NotRunnableError struct {
	TaskID int64
}

func (e *NotRunnableError) Error() string {
	return fmt.Sprintf("task %d is not runnable", e.TaskID)
}
