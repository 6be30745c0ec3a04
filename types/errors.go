package types

import (
	"errors"
	"fmt"
)

// Sentinel errors and the five error kinds from the closing protocol's
// error taxonomy.
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix for sentinels
//   - Wrap external causes with fmt.Errorf("%s: %w", msg, err)
//   - Use errors.Is/errors.As for type-safe checking

var (
	// ErrListenerClosed is returned by a Listener whose Refresh (or a
	// TopologyListener's Data) is called after it has already been
	// closed. A second Close returns nil.
	ErrListenerClosed = errors.New("listener already closed")

	// ErrLockHeld is returned by RunLocked when the coordination lock
	// could not be acquired because another session holds it.
	ErrLockHeld = errors.New("coordination lock is held by another session")

	// ErrNoSuchPartition is returned, wrapped in a CoordinationError, by
	// GetOffset when the partition has no committed-offset node.
	ErrNoSuchPartition = errors.New("no such partition")

	// ErrConnectivity is a sentinel wrapped into CoordinationError by the
	// coordination package when a store call fails because of a transport
	// problem (lost connection, timeout) rather than a logical one
	// (revision conflict, not found). Kept here rather than in
	// package coordination so natsutil-style classifiers can depend on
	// types without dragging in NATS.
	ErrConnectivity = errors.New("coordination store connectivity error")
)

// CoordinationError wraps any failure from the coordination store:
// connection loss, a failed watch, a failed transfer. The core converts
// every CoordinationError surfaced from a task into a transition to
// Cleanup.
type CoordinationError struct {
	Op  string
	Err error
}

func (e *CoordinationError) Error() string {
	return fmt.Sprintf("coordination store: %s: %v", e.Op, e.Err)
}

func (e *CoordinationError) Unwrap() error { return e.Err }

// NewCoordinationError wraps err with the operation name that failed.
func NewCoordinationError(op string, err error) *CoordinationError {
	return &CoordinationError{Op: op, Err: err}
}

// ParseError wraps a failure converting a raw offset to a NakadiCursor.
type ParseError struct {
	RawOffset string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse offset %q: %v", e.RawOffset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err with the raw offset string that failed to parse.
func NewParseError(rawOffset string, err error) *ParseError {
	return &ParseError{RawOffset: rawOffset, Err: err}
}

// ListenerCancelError is raised when closing a listener during
// freePartitions fails. The closing protocol remembers only the first
// one encountered and continues canceling the rest, then rethrows it so
// the task loop converts the session to Cleanup; on_exit logs and
// swallows it instead.
type ListenerCancelError struct {
	Key EventTypePartition
	Err error
}

func (e *ListenerCancelError) Error() string {
	return fmt.Sprintf("cancel listener for %s: %v", e.Key, e.Err)
}

func (e *ListenerCancelError) Unwrap() error { return e.Err }

// NewListenerCancelError wraps err with the partition key whose listener
// failed to close.
func NewListenerCancelError(key EventTypePartition, err error) *ListenerCancelError {
	return &ListenerCancelError{Key: key, Err: err}
}

// ProgrammerError signals an invariant violation: a code path the core
// should never reach at runtime (for example, a topology-changed
// callback firing with a nil listener). It surfaces as a fatal in-task
// error, which the task loop reports as the terminal frame in Cleanup.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Msg }

// NewProgrammerError builds a ProgrammerError with the given message.
func NewProgrammerError(msg string) *ProgrammerError {
	return &ProgrammerError{Msg: msg}
}

// AuthorizationError is surfaced by a task enqueued from the
// authorization watch; it is handled identically to CoordinationError.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string { return fmt.Sprintf("authorization: %v", e.Err) }

func (e *AuthorizationError) Unwrap() error { return e.Err }

// NewAuthorizationError wraps err as an AuthorizationError.
func NewAuthorizationError(err error) *AuthorizationError {
	return &AuthorizationError{Err: err}
}
