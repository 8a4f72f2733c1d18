// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"fmt"

	"github.com/bureau-foundation/frameport/lib/capability"
)

// DefaultQueueCapacity is the number of accepted requests that may
// wait for the consumer before further requests are dropped.
const DefaultQueueCapacity = 4

// ConnectionRequest is one accepted request waiting for the consumer.
// Client must be consumed exactly once: moved into a Session's channel
// or destroyed with Close.
type ConnectionRequest struct {
	// ChannelID is the id the client sent, without its terminator.
	ChannelID string

	// Client owns the client's end of its reply socket.
	Client *capability.Handle
}

// Close destroys the request's capability. Safe to call on a request
// whose capability was already moved.
func (r ConnectionRequest) Close() error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// PendingQueue is a bounded FIFO of accepted requests. It has no lock
// of its own: every call must be made while holding the lock that
// guards it (the service inbox). Drain must only be called from the
// consumer.
type PendingQueue struct {
	entries  []ConnectionRequest
	capacity int
}

// NewPendingQueue creates an empty queue holding at most capacity
// requests. capacity must be positive.
func NewPendingQueue(capacity int) *PendingQueue {
	if capacity <= 0 {
		panic(fmt.Sprintf("preview: queue capacity must be positive, got %d", capacity))
	}
	return &PendingQueue{
		entries:  make([]ConnectionRequest, 0, capacity),
		capacity: capacity,
	}
}

// Push appends request. It returns false without modifying the queue
// when the queue is full, in which case the caller must destroy the
// request.
func (q *PendingQueue) Push(request ConnectionRequest) bool {
	if len(q.entries) >= q.capacity {
		return false
	}
	q.entries = append(q.entries, request)
	return true
}

// Drain removes and returns every queued request in arrival order.
// Returns nil when the queue is empty.
func (q *PendingQueue) Drain() []ConnectionRequest {
	if len(q.entries) == 0 {
		return nil
	}
	drained := make([]ConnectionRequest, len(q.entries))
	copy(drained, q.entries)
	clear(q.entries)
	q.entries = q.entries[:0]
	return drained
}

// Len returns the number of queued requests.
func (q *PendingQueue) Len() int { return len(q.entries) }

// Cap returns the queue's capacity.
func (q *PendingQueue) Cap() int { return q.capacity }
