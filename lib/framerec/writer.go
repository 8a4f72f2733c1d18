// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framerec

import (
	"fmt"
	"io"
)

// Writer appends frames to a recording. It is not safe for concurrent
// use.
type Writer struct {
	w           io.Writer
	compression Compression
	header      []byte
	frames      int
	started     bool
}

// NewWriter returns a Writer that stores frames with compression. The
// file header is written with the first frame, so an empty recording
// leaves w untouched.
func NewWriter(w io.Writer, compression Compression) (*Writer, error) {
	if _, err := ParseCompression(compression.String()); err != nil {
		return nil, err
	}
	return &Writer{
		w:           w,
		compression: compression,
		header:      make([]byte, 0, frameHeaderSize),
	}, nil
}

// WriteFrame appends one frame and returns its digest.
func (w *Writer) WriteFrame(frame []byte) (Digest, error) {
	if len(frame) > MaxFrameSize {
		return Digest{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if !w.started {
		if _, err := io.WriteString(w.w, Magic+string(Version)); err != nil {
			return Digest{}, fmt.Errorf("writing recording header: %w", err)
		}
		w.started = true
	}

	stored, tag, err := compress(frame, w.compression)
	if err != nil {
		return Digest{}, err
	}
	digest := HashFrame(frame)
	w.header = frameHeader{
		tag:          tag,
		uncompressed: uint32(len(frame)),
		stored:       uint32(len(stored)),
		digest:       digest,
	}.append(w.header[:0])

	if _, err := w.w.Write(w.header); err != nil {
		return Digest{}, fmt.Errorf("writing frame %d header: %w", w.frames, err)
	}
	if _, err := w.w.Write(stored); err != nil {
		return Digest{}, fmt.Errorf("writing frame %d: %w", w.frames, err)
	}
	w.frames++
	return digest, nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int { return w.frames }
