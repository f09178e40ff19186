package cascade

import (
	"errors"
	"fmt"

	"github.com/zulandar/shopfloor/internal/store"
)

// Entity names carried by NotFoundError.
const (
	EntityJob       = "job"
	EntityPart      = "part"
	EntityTask      = "task"
	EntityTimeEntry = "time entry"
)

// NotFoundError reports a missing Job, Part or Task, or a Stop without an
// active time entry. It matches store.ErrNotFound with errors.Is.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.Entity == EntityTimeEntry {
		return "no active time entry for " + e.ID
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// PreconditionError is a user-actionable refusal, such as completing a task
// whose timer is still running. Nothing has been mutated when it is returned.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// Precondition reasons.
const (
	ReasonTimerRunning     = "stop time tracking before completing"
	ReasonAlreadyTracking  = "time tracking already running"
	ReasonTaskCompleted    = "task is already completed"
	ReasonOperatorRequired = "operator is required"
)

// notFound converts a store miss into a NotFoundError for entity id.
func notFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}

// Result classifies an operation error for metrics and HTTP status mapping:
// "ok", "not_found", "precondition", "conflict" or "error".
func Result(err error) string {
	var nf *NotFoundError
	var pe *PreconditionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &pe):
		return "precondition"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
