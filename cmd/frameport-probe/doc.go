// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// frameport-probe is a diagnostic client for frameport-service.
//
// The watch subcommand connects to a preview service as an ordinary
// client, maps the surface it is handed, and counts FrameUpdated
// messages. With --record it appends a copy of the surface to a
// framerec file after every update, so a capture can be replayed or
// compared offline by digest.
//
// The status subcommand queries the daemon's CBOR status socket and
// prints either a summary or the raw response in CBOR diagnostic
// notation.
//
// Exit codes: 0 on success, 1 on failure, 2 on usage errors, 3 when
// the service or status socket cannot be reached.
package main
