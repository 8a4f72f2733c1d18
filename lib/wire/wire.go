// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Message identifiers. Four-character codes, readable in hex dumps.
const (
	// RequestMessageID is "prvq".
	RequestMessageID uint32 = 0x70727671

	// SetSurfaceMessageID is "srfc".
	SetSurfaceMessageID uint32 = 0x73726663

	// FrameUpdatedMessageID is "updt".
	FrameUpdatedMessageID uint32 = 0x75706474
)

// Capability dispositions carried in Header.Bits.
const (
	// DispositionNone means no fd accompanies the message.
	DispositionNone uint32 = 0

	// DispositionFD means exactly one fd accompanies the message.
	DispositionFD uint32 = 1
)

const (
	// HeaderSize is the encoded size of [Header].
	HeaderSize = 16

	// ChannelIDSize is the fixed size of the channel id buffer in a
	// ConnectionRequest, terminator included.
	ChannelIDSize = 128

	// MaxChannelIDLength is the longest channel id that fits in the
	// buffer with its terminator.
	MaxChannelIDLength = ChannelIDSize - 1

	// RequestSize is the exact size of an encoded ConnectionRequest.
	RequestSize = HeaderSize + ChannelIDSize
)

// Validation failures. Receivers treat all of them the same way (drop
// the message and close its fds); the distinct values exist for logs
// and tests.
var (
	ErrShortMessage    = errors.New("wire: message shorter than header")
	ErrSizeMismatch    = errors.New("wire: declared size does not match message length")
	ErrUnexpectedID    = errors.New("wire: unexpected message id")
	ErrDisposition     = errors.New("wire: capability disposition does not match received fds")
	ErrUnterminated    = errors.New("wire: channel id is not NUL-terminated")
	ErrChannelIDLength = errors.New("wire: channel id too long")
	ErrChannelIDNUL    = errors.New("wire: channel id contains NUL")
)

// Header is the fixed prefix of every message.
type Header struct {
	// Bits carries the capability disposition.
	Bits uint32

	// Size is the total message length in bytes, header included.
	Size uint32

	// ID identifies the message type.
	ID uint32

	// Reserved is zero on send and ignored on receive.
	Reserved uint32
}

// AppendHeader appends the encoded header to b.
func (h Header) AppendHeader(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Bits)
	b = binary.LittleEndian.AppendUint32(b, h.Size)
	b = binary.LittleEndian.AppendUint32(b, h.ID)
	return binary.LittleEndian.AppendUint32(b, h.Reserved)
}

// DecodeHeader decodes the header at the start of b and checks that
// its Size matches len(b).
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortMessage
	}
	header := Header{
		Bits:     binary.LittleEndian.Uint32(b[0:4]),
		Size:     binary.LittleEndian.Uint32(b[4:8]),
		ID:       binary.LittleEndian.Uint32(b[8:12]),
		Reserved: binary.LittleEndian.Uint32(b[12:16]),
	}
	if int(header.Size) != len(b) {
		return header, fmt.Errorf("%w: header says %d, got %d", ErrSizeMismatch, header.Size, len(b))
	}
	return header, nil
}

// EncodeRequest builds a ConnectionRequest for channelID. The caller
// sends exactly one fd alongside it.
func EncodeRequest(channelID string) ([]byte, error) {
	if len(channelID) > MaxChannelIDLength {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrChannelIDLength, len(channelID), MaxChannelIDLength)
	}
	if bytes.IndexByte([]byte(channelID), 0) >= 0 {
		return nil, ErrChannelIDNUL
	}
	message := make([]byte, 0, RequestSize)
	message = Header{
		Bits: DispositionFD,
		Size: RequestSize,
		ID:   RequestMessageID,
	}.AppendHeader(message)
	message = append(message, channelID...)
	// Zero padding supplies the terminator.
	return message[:RequestSize], nil
}

// DecodeRequest validates a received ConnectionRequest and returns its
// channel id: the bytes before the first NUL. fdCount is the number of
// fds the kernel delivered with the message.
//
// The checks are deliberately narrow: exact id, exact size, exactly one
// fd declared and delivered, and a NUL in the final byte of the id
// buffer. Anything else is rejected.
func DecodeRequest(message []byte, fdCount int) (string, error) {
	if len(message) != RequestSize {
		return "", fmt.Errorf("%w: want %d, got %d", ErrSizeMismatch, RequestSize, len(message))
	}
	header, err := DecodeHeader(message)
	if err != nil {
		return "", err
	}
	if header.ID != RequestMessageID {
		return "", fmt.Errorf("%w: %#x", ErrUnexpectedID, header.ID)
	}
	if header.Bits != DispositionFD || fdCount != 1 {
		return "", fmt.Errorf("%w: bits %d, fds %d", ErrDisposition, header.Bits, fdCount)
	}
	buffer := message[HeaderSize:]
	if buffer[ChannelIDSize-1] != 0 {
		return "", ErrUnterminated
	}
	return string(buffer[:bytes.IndexByte(buffer, 0)]), nil
}

// EncodeSetSurface builds a SetSurface message. hasSurface declares
// whether a surface fd is sent alongside it.
func EncodeSetSurface(hasSurface bool) []byte {
	bits := DispositionNone
	if hasSurface {
		bits = DispositionFD
	}
	return Header{Bits: bits, Size: HeaderSize, ID: SetSurfaceMessageID}.AppendHeader(make([]byte, 0, HeaderSize))
}

// EncodeFrameUpdated builds a FrameUpdated message.
func EncodeFrameUpdated() []byte {
	return Header{Size: HeaderSize, ID: FrameUpdatedMessageID}.AppendHeader(make([]byte, 0, HeaderSize))
}

// DecodeServiceMessage validates a message received by a client and
// returns its header. SetSurface may carry zero or one fd, matching
// its disposition; FrameUpdated carries none.
func DecodeServiceMessage(message []byte, fdCount int) (Header, error) {
	header, err := DecodeHeader(message)
	if err != nil {
		return header, err
	}
	if header.Size != HeaderSize {
		return header, fmt.Errorf("%w: want %d, got %d", ErrSizeMismatch, HeaderSize, header.Size)
	}
	switch header.ID {
	case SetSurfaceMessageID:
		want := 0
		if header.Bits == DispositionFD {
			want = 1
		} else if header.Bits != DispositionNone {
			return header, fmt.Errorf("%w: bits %d", ErrDisposition, header.Bits)
		}
		if fdCount != want {
			return header, fmt.Errorf("%w: bits %d, fds %d", ErrDisposition, header.Bits, fdCount)
		}
	case FrameUpdatedMessageID:
		if header.Bits != DispositionNone || fdCount != 0 {
			return header, fmt.Errorf("%w: bits %d, fds %d", ErrDisposition, header.Bits, fdCount)
		}
	default:
		return header, fmt.Errorf("%w: %#x", ErrUnexpectedID, header.ID)
	}
	return header, nil
}
