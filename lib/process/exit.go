// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitError carries a specific process exit code out of run(). The
// probe returns exit code 2 for usage errors and 3 when the service is
// unreachable.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// WithCode wraps err so that [Fatal] exits with code. A nil err stays
// nil.
func WithCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// Code returns the exit code for err: 0 for nil, the carried code for
// an [ExitError] anywhere in the chain, and 1 otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	return 1
}

// Fatal writes "error: err" to stderr and exits with [Code](err). Use
// it in main() for errors from run() where the structured logger may
// not be initialized.
func Fatal(err error) {
	report(os.Stderr, err)
	os.Exit(Code(err))
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
