package api

import (
	"encoding/gob"
	"errors"
	"fmt"
)

func init() {
	gob.Register(&Failure{})
}

// FailureKind is a closed enumeration of everything that can go wrong in a
// substep. Failures cross process boundaries, so they carry plain data only,
// never live error or process objects.
type FailureKind string

const (
	// KindSignal is structured, expected control flow: the coordinator
	// may retry, skip, or abort based on the signal.
	KindSignal FailureKind = "signal"

	// KindExternalFailure is a non-zero exit from an external command
	// invoked by the statement.
	KindExternalFailure FailureKind = "external"

	// KindArgumentError is an argument or validation error; not
	// retryable without human correction.
	KindArgumentError FailureKind = "argument"

	// KindRuntimeFailure is an uncaught error raised by the statement
	// body, with a bounded diagnostic trace attached.
	KindRuntimeFailure FailureKind = "runtime"
)

// SignalKind identifies which control-flow signal was raised.
type SignalKind string

const (
	SignalSkipGroup       SignalKind = "skip_group"
	SignalTerminate       SignalKind = "terminate"
	SignalUnknownTarget   SignalKind = "unknown_target"
	SignalRemovedTarget   SignalKind = "removed_target"
	SignalUnavailableLock SignalKind = "unavailable_lock"
)

// Failure is the serializable failure record attached to a Result.
type Failure struct {
	Kind    FailureKind
	Signal  SignalKind // set only when Kind == KindSignal
	Message string

	// ExitCode and Stderr are set for external-process failures.
	ExitCode int
	Stderr   string

	// Trace is the bounded, line-windowed diagnostic for runtime
	// failures, restricted to frames from the statement body.
	Trace string
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	switch f.Kind {
	case KindSignal:
		return fmt.Sprintf("%s: %s", f.Signal, f.Message)
	case KindExternalFailure:
		return fmt.Sprintf("external command failed with exit code %d: %s", f.ExitCode, f.Stderr)
	default:
		return f.Message
	}
}

// signalError is raised inside the executor for expected control flow.
// It is converted to a Failure at the worker boundary.
type signalError struct {
	kind SignalKind
	msg  string
}

func (e *signalError) Error() string {
	return string(e.kind) + ": " + e.msg
}

// NewSkipGroupError signals that the current input group should be skipped.
func NewSkipGroupError(msg string) error {
	return &signalError{kind: SignalSkipGroup, msg: msg}
}

// NewTerminateError signals that the whole execution should stop.
func NewTerminateError(msg string) error {
	return &signalError{kind: SignalTerminate, msg: msg}
}

// NewUnknownTargetError signals that the statement referenced a target that
// was never declared.
func NewUnknownTargetError(name string) error {
	return &signalError{kind: SignalUnknownTarget, msg: name}
}

// NewRemovedTargetError signals that a declared target no longer exists.
func NewRemovedTargetError(name string) error {
	return &signalError{kind: SignalRemovedTarget, msg: name}
}

// NewUnavailableLockError signals that the signature lock could not be
// acquired within the configured window.
func NewUnavailableLockError(key string) error {
	return &signalError{kind: SignalUnavailableLock, msg: key}
}

// AsSignal returns (kind, true) if err is a control-flow signal.
func AsSignal(err error) (SignalKind, bool) {
	var s *signalError
	if errors.As(err, &s) {
		return s.kind, true
	}
	return "", false
}

// externalError wraps a non-zero exit of an external process in a form that
// can be carried across a process boundary.
type externalError struct {
	exitCode int
	stderr   string
}

func (e *externalError) Error() string {
	return fmt.Sprintf("external command failed with exit code %d", e.exitCode)
}

// NewExternalError records a failed external command.
func NewExternalError(exitCode int, stderr string) error {
	return &externalError{exitCode: exitCode, stderr: stderr}
}

// AsExternal returns (exitCode, stderr, true) if err is an external-process
// failure.
func AsExternal(err error) (int, string, bool) {
	var x *externalError
	if errors.As(err, &x) {
		return x.exitCode, x.stderr, true
	}
	return 0, "", false
}

// argumentError is an argument or validation error raised by a builtin.
type argumentError struct {
	msg string
}

func (e *argumentError) Error() string { return e.msg }

// NewArgumentError records an argument/validation error.
func NewArgumentError(format string, args ...any) error {
	return &argumentError{msg: fmt.Sprintf(format, args...)}
}

// IsArgumentError reports whether err is an argument/validation error.
func IsArgumentError(err error) bool {
	var a *argumentError
	return errors.As(err, &a)
}

// FailureFromError converts any substep error into its Failure record.
// trace, when non-empty, is attached to runtime failures.
func FailureFromError(err error, trace string) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if kind, ok := AsSignal(err); ok {
		var s *signalError
		errors.As(err, &s)
		return &Failure{Kind: KindSignal, Signal: kind, Message: s.msg}
	}
	if code, stderr, ok := AsExternal(err); ok {
		return &Failure{Kind: KindExternalFailure, ExitCode: code, Stderr: stderr, Message: err.Error()}
	}
	if IsArgumentError(err) {
		return &Failure{Kind: KindArgumentError, Message: err.Error()}
	}
	return &Failure{Kind: KindRuntimeFailure, Message: err.Error(), Trace: trace}
}

// RetCode returns the Result return code implied by a Failure.
func (f *Failure) RetCode() int {
	if f == nil {
		return 0
	}
	if f.Kind == KindExternalFailure && f.ExitCode > 0 {
		return f.ExitCode
	}
	return 1
}
