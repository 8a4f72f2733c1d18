// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framerec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a frame payload is stored. Values are
// written to recordings and must not change.
type Compression uint8

const (
	// CompressionNone stores the frame as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level.
	CompressionZstd Compression = 2

	// CompressionBG4LZ4 transposes 4-byte pixels by channel, then
	// applies LZ4.
	CompressionBG4LZ4 Compression = 3
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionBG4LZ4:
		return "bg4-lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the String form of a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "bg4-lz4":
		return CompressionBG4LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd, or bg4-lz4)", name)
	}
}

// errIncompressible means compression did not shrink the frame.
var errIncompressible = errors.New("framerec: frame does not compress")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("framerec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("framerec: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the stored form of frame and the compression
// actually applied.
func compress(frame []byte, requested Compression) ([]byte, Compression, error) {
	var (
		stored []byte
		err    error
	)
	switch requested {
	case CompressionNone:
		return frame, CompressionNone, nil
	case CompressionLZ4:
		stored, err = compressLZ4(frame)
	case CompressionZstd:
		stored = zstdEncoder.EncodeAll(frame, nil)
		if len(stored) >= len(frame) {
			err = errIncompressible
		}
	case CompressionBG4LZ4:
		stored, err = compressLZ4(transposeBG4(frame))
	default:
		return nil, 0, fmt.Errorf("framerec: unsupported compression %v", requested)
	}
	if errors.Is(err, errIncompressible) {
		return frame, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return stored, requested, nil
}

// decompress reverses compress. size is the uncompressed length from
// the frame header.
func decompress(stored []byte, tag Compression, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != size {
			return nil, fmt.Errorf("framerec: stored frame is %d bytes, header says %d", len(stored), size)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, size)
	case CompressionZstd:
		frame, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("framerec: zstd decompress: %w", err)
		}
		if len(frame) != size {
			return nil, fmt.Errorf("framerec: zstd produced %d bytes, header says %d", len(frame), size)
		}
		return frame, nil
	case CompressionBG4LZ4:
		transposed, err := decompressLZ4(stored, size)
		if err != nil {
			return nil, err
		}
		return untransposeBG4(transposed), nil
	default:
		return nil, fmt.Errorf("framerec: unknown compression tag %d", uint8(tag))
	}
}

func compressLZ4(frame []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(frame)))
	written, err := lz4.CompressBlock(frame, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("framerec: lz4 compress: %w", err)
	}
	// CompressBlock reports incompressible input by writing nothing.
	if written == 0 || written >= len(frame) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(stored []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(stored, destination)
	if err != nil {
		return nil, fmt.Errorf("framerec: lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("framerec: lz4 produced %d bytes, header says %d", read, size)
	}
	return destination, nil
}

// transposeBG4 groups byte i of every 4-byte pixel together: all
// first channels, then all second channels, and so on. Trailing bytes
// past the last whole pixel are copied unchanged.
func transposeBG4(data []byte) []byte {
	pixels := len(data) / 4
	output := make([]byte, len(data))
	for i := range pixels {
		output[i] = data[i*4]
		output[pixels+i] = data[i*4+1]
		output[pixels*2+i] = data[i*4+2]
		output[pixels*3+i] = data[i*4+3]
	}
	copy(output[pixels*4:], data[pixels*4:])
	return output
}

func untransposeBG4(data []byte) []byte {
	pixels := len(data) / 4
	output := make([]byte, len(data))
	for i := range pixels {
		output[i*4] = data[i]
		output[i*4+1] = data[pixels+i]
		output[i*4+2] = data[pixels*2+i]
		output[i*4+3] = data[pixels*3+i]
	}
	copy(output[pixels*4:], data[pixels*4:])
	return output
}
