// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Handle owns one file descriptor received from or destined for
// another process.
type Handle struct {
	mu sync.Mutex
	fd int
}

// NewHandle takes ownership of fd.
func NewHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

// FD returns the owned fd without transferring ownership, or -1 if the
// handle has been released or closed.
func (h *Handle) FD() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd
}

// Valid reports whether the handle still owns an fd.
func (h *Handle) Valid() bool {
	return h.FD() >= 0
}

// Release transfers ownership of the fd to the caller and leaves the
// handle empty. Returns -1 if the handle was already empty.
func (h *Handle) Release() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	fd := h.fd
	h.fd = -1
	return fd
}

// Close closes the fd if the handle still owns one. Safe to call any
// number of times; only the first call closes.
func (h *Handle) Close() error {
	fd := h.Release()
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("closing fd %d: %w", fd, err)
	}
	return nil
}

// CloseAll closes raw fds that were received but will not be used.
func CloseAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// ErrControlMessage reports ancillary data other than SCM_RIGHTS.
var ErrControlMessage = errors.New("capability: unexpected control message")

// ParseRights extracts every fd from the ancillary data of one received
// message. It returns the fds together with the number of control
// messages seen. Non-SCM_RIGHTS control messages produce
// ErrControlMessage. On any error the fds found so far are still
// returned so the caller can close them: the kernel has already
// installed them in this process.
func ParseRights(oob []byte) (fds []int, messages int, err error) {
	if len(oob) == 0 {
		return nil, 0, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		fds, messages = salvageRights(oob)
		return fds, messages, fmt.Errorf("parsing control messages: %w", err)
	}
	for i := range scms {
		if scms[i].Header.Level != unix.SOL_SOCKET || scms[i].Header.Type != unix.SCM_RIGHTS {
			err = fmt.Errorf("%w: level %d type %d", ErrControlMessage, scms[i].Header.Level, scms[i].Header.Type)
			continue
		}
		rights, parseErr := unix.ParseUnixRights(&scms[i])
		if parseErr != nil {
			if err == nil {
				err = fmt.Errorf("parsing SCM_RIGHTS: %w", parseErr)
			}
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, len(scms), err
}

// salvageRights walks oob one control message at a time and collects
// the fds of every well-formed SCM_RIGHTS message before the first
// malformed header.
func salvageRights(oob []byte) (fds []int, messages int) {
	headerSize := unix.CmsgLen(0)
	for len(oob) >= headerSize {
		header := (*unix.Cmsghdr)(unsafe.Pointer(&oob[0]))
		length := int(header.Len)
		if length < headerSize || length > len(oob) {
			return fds, messages
		}
		messages++
		if header.Level == unix.SOL_SOCKET && header.Type == unix.SCM_RIGHTS {
			for data := oob[headerSize:length]; len(data) >= 4; data = data[4:] {
				fds = append(fds, int(int32(binary.NativeEndian.Uint32(data))))
			}
		}
		// The next header starts at the aligned end of this one.
		next := unix.CmsgSpace(length - headerSize)
		if next > len(oob) {
			return fds, messages
		}
		oob = oob[next:]
	}
	return fds, messages
}

// IsSeqpacketSocket reports whether fd is an AF_UNIX SOCK_SEQPACKET
// socket, the only kind of fd a client may hand the service as its
// reply channel.
func IsSeqpacketSocket(fd int) bool {
	socketType, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil || socketType != unix.SOCK_SEQPACKET {
		return false
	}
	domain, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	return err == nil && domain == unix.AF_UNIX
}
