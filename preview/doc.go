// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package preview is the preview hand-off service: a named local
// endpoint through which other processes find a live mixer and receive
// its rendered frame as a shared-memory surface, followed by one
// "updated" signal per rendered frame.
//
// # Protocol
//
// A client creates a SOCK_SEQPACKET socketpair, keeps one end, and
// sends a ConnectionRequest datagram to the service name carrying the
// other end via SCM_RIGHTS together with a channel id naming the mixer
// it wants. The service replies on that socket with SetSurface (zero
// or one memfd fd) and FrameUpdated messages. Layouts are in
// lib/wire.
//
// Service names live in the abstract Unix socket namespace, so a
// crashed process never leaves a stale name behind. A name that begins
// with "/" is bound as a filesystem socket instead.
//
// # Execution contexts
//
// Three kinds of goroutine touch a [Service]:
//
//   - The listener goroutine, started by [Registry.Start], blocks in a
//     datagram receive. It validates each request and pushes it onto a
//     bounded [PendingQueue]. A full queue drops the request.
//   - The consumer, the single goroutine running [Service.Run], drains
//     the queue, builds a [Session] per request, and hands it to the
//     [Handler] in acceptance order. It is also the only place
//     SessionClosed notifications are delivered.
//   - Render goroutines call [Source.FrameRendered] and
//     [Source.Publish].
//
// Wake-ups from the listener and from failing sessions to the consumer
// are coalesced: any number of pokes before the consumer runs produce
// one drain.
//
// Lock order is source, then session, then the service inbox. No lock
// is held across the listener's receive. The longest operation under a
// lock is one bounded-timeout send.
//
// # Failures
//
// A send that times out is dropped; the next frame supersedes it. Any
// other send failure closes the session's channel and schedules
// exactly one SessionClosed for it. A receive error on the listener
// stops the service permanently unless [Options.ReceiveErrors] selects
// [RetryTransient].
package preview
