package fleet

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all Warren subsystems. Callers check them with
// errors.Is; subsystems wrap them with fmt.Errorf("...: %w", ...) to add
// context without losing the category.
var (
	// ErrNotFound indicates an unknown agent, task, or commit.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate agent ID.
	ErrAlreadyExists = errors.New("already exists")

	// ErrCircularDependency indicates a task dependency graph cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrQueueFull indicates broker backpressure: the message queue is at
	// capacity and the send was rejected without enqueuing.
	ErrQueueFull = errors.New("message queue full")
)

// ValidationError describes a rejected field value. It is returned before any
// state mutation, so a validation failure never leaves partial writes behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
