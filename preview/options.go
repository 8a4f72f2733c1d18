// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/clock"
)

// ReceiveErrorPolicy decides what the listener does when a receive on
// the service endpoint fails.
type ReceiveErrorPolicy int

const (
	// Fatal stops the listener on the first receive error. The service
	// stays registered but accepts nothing further.
	Fatal ReceiveErrorPolicy = iota

	// RetryTransient retries EINTR, EAGAIN, ENOBUFS, and ENOMEM after
	// Options.RetryBackoff. Any other error is still fatal.
	RetryTransient
)

// String returns the configuration spelling of the policy.
func (p ReceiveErrorPolicy) String() string {
	switch p {
	case Fatal:
		return "fatal"
	case RetryTransient:
		return "retry-transient"
	default:
		return fmt.Sprintf("ReceiveErrorPolicy(%d)", int(p))
	}
}

// ParseReceiveErrorPolicy parses "fatal" or "retry-transient". The
// empty string selects Fatal.
func ParseReceiveErrorPolicy(value string) (ReceiveErrorPolicy, error) {
	switch value {
	case "", "fatal":
		return Fatal, nil
	case "retry-transient":
		return RetryTransient, nil
	default:
		return Fatal, fmt.Errorf("unknown receive error policy %q (want fatal or retry-transient)", value)
	}
}

// DefaultRetryBackoff is the pause before retrying a transient receive
// error under RetryTransient.
const DefaultRetryBackoff = 100 * time.Millisecond

// Options configures a Service. The zero value is valid.
type Options struct {
	// QueueCapacity bounds the pending queue. Zero selects
	// DefaultQueueCapacity.
	QueueCapacity int

	// SendTimeout bounds each message sent to a client. Zero selects
	// capability.DefaultSendTimeout.
	SendTimeout time.Duration

	// ReceiveErrors selects the listener's receive error policy.
	ReceiveErrors ReceiveErrorPolicy

	// RetryBackoff is the pause before a retried receive. Zero selects
	// DefaultRetryBackoff.
	RetryBackoff time.Duration

	// Logger receives the service's log records. Nil discards them.
	Logger *slog.Logger

	// Clock drives retry backoff. Nil selects the real clock.
	Clock clock.Clock
}

// withDefaults returns a copy of o with zero fields filled in.
func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = capability.DefaultSendTimeout
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	return o
}
