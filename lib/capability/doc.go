// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability wraps file descriptors that move between
// processes inside Unix socket messages.
//
// A [Handle] is the unique owner of one fd. Ownership moves with
// [Handle.Release]; the fd is closed exactly once by whichever side
// ends up holding it, including on every error path. Handles are never
// duplicated.
//
// A [Channel] is the service's end of a client's seqpacket socket. It
// sends one fixed-layout message at a time, optionally with one fd as
// SCM_RIGHTS ancillary data, under a short write deadline so a stalled
// client cannot stall the caller. Send outcomes fall into three
// classes:
//
//   - success;
//   - [ErrSendTimedOut]: the peer's receive queue is full. The message
//     is dropped, the channel stays open;
//   - anything else: the channel closes itself. Errors matching
//     [ErrPeerGone] are the normal result of a client exiting.
//
// After a channel closes, every Send returns [ErrClosed] without
// touching the kernel.
package capability
