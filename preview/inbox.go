// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import "sync"

// inbox is the state shared between the listener, failing sessions,
// and the consumer: the pending queue, sessions waiting for their
// SessionClosed, and the counters. The notify channel has capacity 1
// and is written without blocking, so pokes coalesce.
type inbox struct {
	mu           sync.Mutex
	queue        *PendingQueue
	disconnected []*Session
	counters     counters
	notify       chan struct{}
}

// counters are cumulative since the service started.
type counters struct {
	accepted       uint64
	rejected       uint64
	dropped        uint64
	opened         uint64
	disconnected   uint64
	receiveRetries uint64
}

func newInbox(capacity int) *inbox {
	return &inbox{
		queue:  NewPendingQueue(capacity),
		notify: make(chan struct{}, 1),
	}
}

// poke wakes the consumer without blocking.
func (b *inbox) poke() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// deliver queues an accepted request and wakes the consumer. It
// returns false when the queue is full; the caller then destroys the
// request.
func (b *inbox) deliver(request ConnectionRequest) bool {
	b.mu.Lock()
	queued := b.queue.Push(request)
	if queued {
		b.counters.accepted++
	} else {
		b.counters.dropped++
	}
	b.mu.Unlock()

	if queued {
		b.poke()
	}
	return queued
}

// reject counts a malformed request.
func (b *inbox) reject() {
	b.mu.Lock()
	b.counters.rejected++
	b.mu.Unlock()
}

// retried counts a transient receive error that was retried.
func (b *inbox) retried() {
	b.mu.Lock()
	b.counters.receiveRetries++
	b.mu.Unlock()
}

// opened counts a session handed to the application.
func (b *inbox) opened() {
	b.mu.Lock()
	b.counters.opened++
	b.mu.Unlock()
}

// reportDisconnected schedules SessionClosed for session. Callers
// guarantee one report per session.
func (b *inbox) reportDisconnected(session *Session) {
	b.mu.Lock()
	b.disconnected = append(b.disconnected, session)
	b.counters.disconnected++
	b.mu.Unlock()
	b.poke()
}

// take drains both the pending queue and the disconnected list.
// Consumer only.
func (b *inbox) take() ([]ConnectionRequest, []*Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	requests := b.queue.Drain()
	disconnected := b.disconnected
	b.disconnected = nil
	return requests, disconnected
}

// takeRequests drains only the pending queue, leaving disconnect
// reports for the consumer.
func (b *inbox) takeRequests() []ConnectionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Drain()
}

// snapshot returns the counters and the queue length.
func (b *inbox) snapshot() (counters, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters, b.queue.Len()
}
