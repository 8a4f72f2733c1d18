// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package framerec reads and writes frame recordings: a sequence of
// raw surface snapshots captured by frameport-probe.
//
// A recording starts with the 4-byte magic "FPRC" and a version byte.
// Each frame follows as a fixed 41-byte header and its stored payload:
//
//	tag          uint8     compression (see [Compression])
//	uncompressed uint32    frame size in bytes, little-endian
//	stored       uint32    payload size in bytes, little-endian
//	digest       [32]byte  BLAKE3 keyed hash of the uncompressed frame
//
// A frame that does not shrink under the requested compression is
// stored uncompressed with tag none, so tag describes what was done,
// not what was asked for. [Reader.Next] decompresses and verifies the
// digest of every frame it returns.
//
// RGBA frames compress best with [CompressionBG4LZ4], which groups the
// bytes of each channel together before LZ4.
package framerec
