// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package sverr defines the error taxonomy shared by all sv commands.
// Every error that reaches main carries one of three kinds, each mapped
// to a fixed process exit code: validation errors (bad flags, bad
// selectors, bad config) exit 2, conflict errors (lease conflicts,
// protected paths, lock timeouts, replay conflicts) exit 3, and
// internal errors (git failures, corrupt state files) exit 4. Success
// is exit 0. Warnings never change the exit code.
package sverr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code mapping and JSON output.
type Kind int

const (
	// Validation covers user mistakes: unknown flags, malformed
	// selectors or durations, missing required arguments, invalid
	// configuration.
	Validation Kind = iota

	// Conflict covers coordination refusals: a lease held by another
	// actor, a protected path in the commit, a lock that could not be
	// acquired, a replay that hit merge conflicts.
	Conflict

	// Internal covers everything sv itself got wrong or could not
	// recover from: git invocation failures, unparseable state files,
	// I/O errors.
	Internal
)

// String returns the kind's wire name as used in JSON error output.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Internal:
		return "internal"
	}
	return "internal"
}

// exitCode maps a kind to its process exit code.
func (k Kind) exitCode() int {
	switch k {
	case Validation:
		return 2
	case Conflict:
		return 3
	}
	return 4
}

// Error is a classified sv error. It wraps an optional cause and
// reports its exit code through the ExitCode method that main checks.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil && e.msg != "" {
		return e.msg + ": " + e.cause.Error()
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// ExitCode returns the process exit code for this error.
func (e *Error) ExitCode() int { return e.kind.exitCode() }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Validationf formats a validation error (exit 2).
func Validationf(format string, args ...any) error {
	return &Error{kind: Validation, msg: fmt.Sprintf(format, args...)}
}

// Conflictf formats a conflict error (exit 3).
func Conflictf(format string, args ...any) error {
	return &Error{kind: Conflict, msg: fmt.Sprintf(format, args...)}
}

// Internalf formats an internal error (exit 4).
func Internalf(format string, args ...any) error {
	return &Error{kind: Internal, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and context message to an existing error. A nil
// err returns nil so callers can wrap unconditionally.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: err}
}

// KindOf returns the kind of err. Unclassified errors report Internal,
// matching the exit-code mapping in main.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return Internal
}

// ExitCodeOf returns the exit code an error would produce: 0 for nil,
// the classified code for an *Error, 4 otherwise.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.ExitCode()
	}
	return 4
}

// JSONError is the JSON shape emitted for errors in --json mode.
type JSONError struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts an error into its JSON output shape.
func ToJSON(err error) JSONError {
	return JSONError{
		Error:    err.Error(),
		Kind:     KindOf(err).String(),
		ExitCode: ExitCodeOf(err),
	}
}
