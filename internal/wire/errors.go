package wire

import (
	"errors"
	"fmt"
)

// The error kinds below follow spec.md §7's taxonomy "by kind, not by type
// name": each is a small wrapper so callers can branch with errors.As while
// still getting a wrapped, %w-chained message in the teacher's style
// (controlplane/ffi/shm.go, controlplane/pkg/yncp/cfg.go).

// ConfigError reports a configuration problem: a segment too small, a
// malformed topic name, or a version the caller can't speak.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError, optionally wrapping a cause.
func NewConfigError(msg string, cause error) error {
	return &ConfigError{Msg: msg, Err: cause}
}

// ResourceError reports an OS resource failure: shm_open/mmap/semaphore
// syscalls.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource: %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError builds a ResourceError.
func NewResourceError(op string, cause error) error {
	return &ResourceError{Op: op, Err: cause}
}

// CapacityError reports that a bounded resource (topic slots, subscriber
// slots, ring bytes) is exhausted.
type CapacityError struct {
	Msg string
}

func (e *CapacityError) Error() string { return fmt.Sprintf("capacity: %s", e.Msg) }

// NewCapacityError builds a CapacityError.
func NewCapacityError(msg string) error { return &CapacityError{Msg: msg} }

// PreconditionError reports a violated precondition, such as a second
// publisher attempting to attach under a different name.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return fmt.Sprintf("precondition: %s", e.Msg) }

// NewPreconditionError builds a PreconditionError.
func NewPreconditionError(msg string) error { return &PreconditionError{Msg: msg} }

// DataError reports untrusted shared-memory content failing validation:
// a bad magic, a CRC mismatch, or a sequence gap. Per spec.md §7 this is
// reported as "no message," never panicked on.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string { return fmt.Sprintf("data: %s", e.Msg) }

// NewDataError builds a DataError.
func NewDataError(msg string) error { return &DataError{Msg: msg} }

// Sentinel errors for errors.Is. ErrInvalidTopicName, ErrVersionMismatch and
// ErrSizeMismatch are wrapped by the ConfigErrors reporting those conditions.
// ErrNoData, ErrTopicFull, ErrSubscribersFull and ErrPublisherConflict are
// not returned or wrapped anywhere in this module: the DataError,
// CapacityError and PreconditionError values for those conditions do not
// match them under errors.Is.
var (
	ErrNoData            = errors.New("no data available")
	ErrTopicFull         = errors.New("topic registry is full")
	ErrInvalidTopicName  = errors.New("invalid topic name")
	ErrSubscribersFull   = errors.New("subscriber table is full")
	ErrPublisherConflict = errors.New("a different publisher is already registered")
	ErrVersionMismatch   = errors.New("segment layout version mismatch")
	ErrSizeMismatch      = errors.New("segment size mismatch")
)
