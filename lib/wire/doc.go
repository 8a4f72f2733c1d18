// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the fixed-layout messages of the frameport
// preview protocol.
//
// Every message starts with a 16-byte little-endian [Header]. The
// header's Size field is the total message length and must match the
// datagram length exactly; receivers reject anything else without
// inspecting the body. Capabilities (file descriptors) never appear in
// the body: they travel beside the message as SCM_RIGHTS ancillary
// data, and the header's Bits field declares whether one is present.
//
// Three messages exist:
//
//   - ConnectionRequest (client to service): header plus a 128-byte
//     NUL-terminated channel id, with exactly one seqpacket socket fd
//     that the service uses to talk back to the client.
//   - SetSurface (service to client): header only, with zero or one
//     memfd fd. No fd means "no surface".
//   - FrameUpdated (service to client): header only, no fd.
//
// This package has no dependencies on the socket layer; it only
// encodes and validates bytes. Callers pass the number of received
// fds to the decoders so the header's declared disposition can be
// checked against what the kernel delivered.
package wire
