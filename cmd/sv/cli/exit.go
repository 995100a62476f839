// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit without an extra error line. The
// command is expected to have already written its own output; main
// checks for the ExitCode method and exits silently.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode distinguishes a handled non-zero exit from an unexpected
// error that should be printed.
func (e *ExitError) ExitCode() int {
	return e.Code
}
