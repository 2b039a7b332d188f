package domain

import (
	"fmt"
	"time"
)

// ValidationError reports malformed or out-of-range input. It is raised
// before any state mutation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("validation failed: %s", e.Msg)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports a duplicate name or a concurrent-write conflict.
// During sync these are collected as response data, not raised; outside
// sync (e.g. deck creation) they surface as errors.
type ConflictError struct {
	Entity          string
	ID              string
	Msg             string
	ClientTimestamp time.Time
	ServerTimestamp time.Time
}

func (e *ConflictError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("conflict on %s %s: %s", e.Entity, e.ID, e.Msg)
	}
	return fmt.Sprintf("conflict on %s %s: server record is newer (client %s, server %s)",
		e.Entity, e.ID,
		e.ClientTimestamp.Format(time.RFC3339), e.ServerTimestamp.Format(time.RFC3339))
}

// PreconditionError reports an operation attempted against an entity in a
// state that forbids it, such as reviewing a soft-deleted card.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Msg)
}
