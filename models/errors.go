package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// FailureKind classifies failures for the fault tolerance policy
type FailureKind int

const (
	FailurePermanent FailureKind = iota
	FailureParse
	FailureTransient
	FailureInitialization
)

func (k FailureKind) String() string {
	switch k {
	case FailureParse:
		return "parse"
	case FailureTransient:
		return "transient"
	case FailureInitialization:
		return "initialization"
	default:
		return "permanent"
	}
}

type MissingConfigError struct {
	Key string
}

func (e *MissingConfigError) Error() string {
	return "missing required configuration key: " + e.Key
}

func ErrMissingConfig(key string) error {
	return &MissingConfigError{Key: key}
}

type InterpolateError struct {
	Key   string
	Value any
}

func (e *InterpolateError) Error() string {
	return fmt.Sprintf("failed to interpolate value for key '%s': %v", e.Key, e.Value)
}

func ErrInterpolate(key string, value any) error {
	return &InterpolateError{Key: key, Value: value}
}

// ParseError is a per-record failure: malformed input or a record that cannot be transformed
type ParseError struct {
	Line  int64  // 1-based line or position, 0 when unknown
	Input string // raw input, if any
	Cause error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %v", e.Line, e.Cause)
	}
	return fmt.Sprintf("parse error: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func ErrParse(line int64, input string, cause error) error {
	return &ParseError{Line: line, Input: input, Cause: cause}
}

// TransientError is a failure worth retrying, like a timeout talking to a sink
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "transient error: " + e.Cause.Error() }

func (e *TransientError) Unwrap() error { return e.Cause }

func ErrTransient(cause error) error {
	return &TransientError{Cause: cause}
}

// PermanentError is a failure that no retry can fix, like a sink rejecting an operation
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string { return "permanent error: " + e.Cause.Error() }

func (e *PermanentError) Unwrap() error { return e.Cause }

func ErrPermanent(cause error) error {
	return &PermanentError{Cause: cause}
}

// InitializationError is a failure to open a source or sink
type InitializationError struct {
	Component string
	Cause     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to open %s: %v", e.Component, e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

func ErrInitialization(component string, cause error) error {
	return &InitializationError{Component: component, Cause: cause}
}

// SkipLimitExceededError wraps the parse error that crossed the skip limit.
// It classifies as its cause.
type SkipLimitExceededError struct {
	Limit int
	Cause error
}

func (e *SkipLimitExceededError) Error() string {
	return fmt.Sprintf("skip limit of %d exceeded: %v", e.Limit, e.Cause)
}

func (e *SkipLimitExceededError) Unwrap() error { return e.Cause }

// RetryLimitExceededError wraps the last transient error of a chunk that ran out of retries
type RetryLimitExceededError struct {
	Attempts int
	Cause    error
}

func (e *RetryLimitExceededError) Error() string {
	return fmt.Sprintf("chunk failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *RetryLimitExceededError) Unwrap() error { return e.Cause }

// StepError is the single step-level failure surfaced to the caller. A StepError
// always means the step failed; Kind is the kind of the originating cause, so a
// skip limit abort reports parse and an exhausted retry reports transient.
type StepError struct {
	Step   string
	Kind   FailureKind
	Record *Record // first failing record, when known
	Cause  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("error executing step %s: %v", e.Step, e.Cause)
}

func (e *StepError) Unwrap() error { return e.Cause }

// Classify determines the failure kind of err
func Classify(err error) FailureKind {
	var (
		parseErr     *ParseError
		transientErr *TransientError
		permanentErr *PermanentError
		initErr      *InitializationError
		netErr       net.Error
	)
	switch {
	case err == nil:
		return FailurePermanent
	case errors.As(err, &initErr):
		return FailureInitialization
	case errors.As(err, &permanentErr):
		return FailurePermanent
	case errors.As(err, &parseErr):
		return FailureParse
	case errors.As(err, &transientErr):
		return FailureTransient
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return FailureTransient
	case errors.As(err, &netErr) && netErr.Timeout():
		return FailureTransient
	default:
		return FailurePermanent
	}
}
