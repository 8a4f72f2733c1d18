// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framerec

import (
	"encoding/binary"
	"errors"
)

// Magic opens every recording.
const Magic = "FPRC"

// Version is the format version this package writes.
const Version byte = 1

const (
	fileHeaderSize  = len(Magic) + 1
	frameHeaderSize = 1 + 4 + 4 + len(Digest{})

	// MaxFrameSize bounds a single frame. 8K RGBA is well under it.
	MaxFrameSize = 256 << 20
)

// Format errors returned by Reader.
var (
	ErrBadMagic       = errors.New("framerec: not a frame recording")
	ErrVersion        = errors.New("framerec: unsupported recording version")
	ErrFrameTooLarge  = errors.New("framerec: frame exceeds maximum size")
	ErrDigestMismatch = errors.New("framerec: frame digest mismatch")
)

// frameHeader precedes every stored frame.
type frameHeader struct {
	tag          Compression
	uncompressed uint32
	stored       uint32
	digest       Digest
}

func (h frameHeader) append(b []byte) []byte {
	b = append(b, byte(h.tag))
	b = binary.LittleEndian.AppendUint32(b, h.uncompressed)
	b = binary.LittleEndian.AppendUint32(b, h.stored)
	return append(b, h.digest[:]...)
}

func parseFrameHeader(b []byte) frameHeader {
	header := frameHeader{
		tag:          Compression(b[0]),
		uncompressed: binary.LittleEndian.Uint32(b[1:5]),
		stored:       binary.LittleEndian.Uint32(b[5:9]),
	}
	copy(header.digest[:], b[9:frameHeaderSize])
	return header
}
