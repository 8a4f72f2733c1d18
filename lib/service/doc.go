// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the scaffolding frameport binaries share:
//
//   - [NewLogger]: the process-wide structured logger. JSON on stderr
//     when stderr is piped or redirected, text when it is a terminal.
//   - [SocketServer]: a CBOR request-response server on a Unix socket
//     with action dispatch, connection timeouts, and graceful
//     shutdown. The daemon's status socket is one of these.
//   - [Client]: the matching one-request-per-connection caller, used
//     by frameport-probe.
//
// # Wire protocol
//
// Each connection carries exactly one request and one response. The
// request is a CBOR map with an "action" field plus action-specific
// fields. The response is a [Response] envelope: {ok: true, data: ...}
// on success, {ok: false, error: "..."} on failure.
//
// The status socket has no caller authentication; filesystem
// permissions on the socket path decide who can reach it.
package service
