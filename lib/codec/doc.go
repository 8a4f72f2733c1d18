// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used on frameport's status socket
// and in the probe's machine-readable output.
//
// Every encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so
// the same [preview.Stats] value always encodes to the same bytes.
// Decoding ignores unknown fields, which lets an older probe read a
// newer daemon's status reply.
//
// Types that cross the status socket carry cbor struct tags:
//
//	type Stats struct {
//	    Pending  int `cbor:"pending"`
//	    Sessions int `cbor:"sessions"`
//	}
//
// [Encoder], [Decoder], and [RawMessage] are aliases so callers never
// import fxamacker/cbor directly.
package codec
