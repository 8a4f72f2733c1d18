// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// frameport-service is the preview hand-off daemon. It claims a
// preview service name, renders a synthetic test pattern for each
// configured mixer into a shared-memory surface, and hands that
// surface to every client whose channel id names the mixer. Each
// rendered frame sends the attached clients a FrameUpdated message.
//
// Configuration comes from --config or FRAMEPORT_CONFIG (see
// lib/config). When status.socket_path is set the daemon also serves a
// CBOR status socket with two actions:
//
//   - status: build information, preview service counters, and
//     per-mixer frame and session counts
//   - sessions: every open session with its channel id and attached
//     mixer
//
// The daemon exits when it receives SIGINT or SIGTERM, or when the
// preview listener stops receiving requests.
package main
