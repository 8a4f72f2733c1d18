// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"errors"
	"fmt"
)

// Start failure kinds. A *StartError matches exactly one of these with
// errors.Is.
var (
	// ErrAlreadyRunning means this registry already holds a service
	// under the requested name.
	ErrAlreadyRunning = errors.New("preview: service already running")

	// ErrRegistrationFailed means the name could not be claimed, most
	// often because another process is bound to it.
	ErrRegistrationFailed = errors.New("preview: service name registration failed")

	// ErrListenSetupFailed means the receive endpoint could not be
	// created.
	ErrListenSetupFailed = errors.New("preview: listen endpoint setup failed")
)

var (
	// ErrConsumerActive is returned by Run when another goroutine is
	// already running it.
	ErrConsumerActive = errors.New("preview: Run is already active on this service")

	// ErrSourceClosed is returned by Publish after the source closed.
	ErrSourceClosed = errors.New("preview: source closed")

	// ErrServiceNotFound is returned by Dial when nothing is bound to
	// the service name.
	ErrServiceNotFound = errors.New("preview: service not found")
)

// StartError describes why Registry.Start failed.
type StartError struct {
	// Kind is ErrAlreadyRunning, ErrRegistrationFailed, or
	// ErrListenSetupFailed.
	Kind error

	// Name is the service name that was being started.
	Name string

	// Err is the underlying system error, if any.
	Err error
}

func (e *StartError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("starting %q: %v", e.Name, e.Kind)
	}
	return fmt.Sprintf("starting %q: %v: %v", e.Name, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the system error to
// errors.Is and errors.As.
func (e *StartError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
