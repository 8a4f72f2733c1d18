// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framerec

import (
	"errors"
	"fmt"
	"io"
)

// Frame is one frame read back from a recording.
type Frame struct {
	// Data is the uncompressed frame.
	Data []byte

	// Digest is the stored digest, already verified against Data.
	Digest Digest

	// Compression is how the frame was stored.
	Compression Compression
}

// Reader reads frames from a recording. It is not safe for concurrent
// use.
type Reader struct {
	r      io.Reader
	header [frameHeaderSize]byte
	frames int
}

// NewReader reads and checks the recording header.
func NewReader(r io.Reader) (*Reader, error) {
	var header [fileHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, fmt.Errorf("reading recording header: %w", err)
	}
	if string(header[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}
	if version := header[len(Magic)]; version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	return &Reader{r: r}, nil
}

// Next returns the next frame, or io.EOF after the last one. A
// recording cut off inside a frame returns io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("reading frame %d header: %w", r.frames, err)
	}
	header := parseFrameHeader(r.header[:])
	if header.uncompressed > MaxFrameSize || header.stored > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: frame %d", ErrFrameTooLarge, r.frames)
	}

	stored := make([]byte, header.stored)
	if _, err := io.ReadFull(r.r, stored); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("reading frame %d: %w", r.frames, err)
	}
	data, err := decompress(stored, header.tag, int(header.uncompressed))
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w", r.frames, err)
	}
	if HashFrame(data) != header.digest {
		return Frame{}, fmt.Errorf("%w: frame %d", ErrDigestMismatch, r.frames)
	}
	r.frames++
	return Frame{Data: data, Digest: header.digest, Compression: header.tag}, nil
}
