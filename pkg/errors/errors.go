// Package errors defines the error taxonomy used across Stratum.
package errors

import (
	"errors"
	"fmt"
)

// Type classifies an error the way it is surfaced on the wire.
type Type string

const (
	TypeInvalidRequest Type = "invalid_request"
	TypeAuth           Type = "auth"
	TypeInternal       Type = "internal"
	TypeSystem         Type = "system"
)

// Error is the taxonomy-tagged error returned by scheduler components.
type Error struct {
	Code        string
	Message     string
	ErrType     Type
	Link        string
	Cause       error
	recoverable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Recoverable reports whether the run loop may continue ticking after this
// error, or must sleep and retry (spec.md §5, §7).
func (e *Error) Recoverable() bool { return e.recoverable }

func newErr(code, message string, typ Type, recoverable bool, cause error) *Error {
	return &Error{Code: code, Message: message, ErrType: typ, Cause: cause, recoverable: recoverable}
}

// Wrap tags a generic error as a recoverable internal error, preserving it
// for errors.Is/As chains.
func Wrap(cause error, message string) *Error {
	return newErr("internal_error", message, TypeInternal, true, cause)
}

// Sentinel constructors. Each returns a fresh *Error so callers can attach
// task-specific context via fmt.Errorf("%w", ...) without mutating a shared
// value, while errors.Is still matches on Code.

func IndexNotFound(name string) *Error {
	return newErr("index_not_found", fmt.Sprintf("index %q not found", name), TypeInvalidRequest, true, nil)
}

func IndexAlreadyExists(name string) *Error {
	return newErr("index_already_exists", fmt.Sprintf("index %q already exists", name), TypeInvalidRequest, true, nil)
}

func TaskNotFound(uid uint32) *Error {
	return newErr("task_not_found", fmt.Sprintf("task %d not found", uid), TypeInvalidRequest, true, nil)
}

func BatchNotFound(uid uint32) *Error {
	return newErr("batch_not_found", fmt.Sprintf("batch %d not found", uid), TypeInvalidRequest, true, nil)
}

func NoSpaceLeftInTaskQueue() *Error {
	return newErr("no_space_left_on_device", "the task queue is almost full and only deletion/cancellation tasks can be enqueued", TypeSystem, true, nil)
}

func PrimaryKeyMismatch(reason string) *Error {
	return newErr("index_primary_key_multiple_candidates_found", reason, TypeInvalidRequest, true, nil)
}

func Unauthorized(index string) *Error {
	return newErr("index_authorization", fmt.Sprintf("not authorized on index %q", index), TypeAuth, true, nil)
}

func CorruptedTaskQueue(cause error) *Error {
	return newErr("corrupted_task_queue", "the task queue is corrupted", TypeSystem, false, cause)
}

func SchemaVersionMismatch(onDisk, running [3]uint32) *Error {
	return newErr(
		"schema_version_mismatch",
		fmt.Sprintf("on-disk schema version %v is incompatible with running version %v", onDisk, running),
		TypeSystem, false, nil,
	)
}

func InvalidRequest(code, message string) *Error {
	return newErr(code, message, TypeInvalidRequest, true, nil)
}

func Internal(message string, cause error) *Error {
	return newErr("internal_error", message, TypeInternal, true, cause)
}

func BatchFatal(message string, cause error) *Error {
	return newErr("batch_failed", message, TypeSystem, true, cause)
}

// As is a thin re-export of the standard library helper so callers that
// already import this package don't need a second import for type
// assertions against *Error.
func As(err error, target **Error) bool { return errors.As(err, target) }

// Is re-exports errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
