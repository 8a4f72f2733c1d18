// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shm provides shared-memory image surfaces backed by memfd.
//
// A [Surface] is an anonymous memory file mapped MAP_SHARED into the
// creating process. Its fd is the surface handle: sending it to another
// process over a Unix socket gives that process the same pages, so
// frames are shared without copying pixel data. The receiver maps it
// read-only with [Open].
//
// Surfaces created here are sealed against resizing, so a receiver can
// trust the size it observes with fstat for the lifetime of its
// mapping. They are also sealed against future writes: only the
// mapping made by [Create] can modify the pixels, and a process that
// receives the fd cannot map it writable or write(2) to it.
package shm

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Surface is a mapped memfd region. The zero value is not usable.
type Surface struct {
	mu       sync.Mutex
	fd       int
	data     []byte
	writable bool
	closed   bool
}

// Create allocates a new writable surface of size bytes. name appears
// in /proc/<pid>/fd and is for debugging only.
func Create(name string, size int) (*Surface, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: surface size must be positive, got %d", size)
	}

	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate to %d: %w", size, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	// FUTURE_WRITE leaves the mapping above writable but refuses every
	// later writable mmap and write(2), in this process or any holder
	// of the fd. It must come after the mmap.
	const seals = unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_FUTURE_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		unix.Munmap(data)
		unix.Close(fd)
		return nil, fmt.Errorf("shm: sealing surface: %w", err)
	}

	return &Surface{fd: fd, data: data, writable: true}, nil
}

// Open takes ownership of a surface fd received from another process
// and maps it read-only. The fd is closed on failure.
func Open(fd int) (*Surface, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: fstat surface: %w", err)
	}
	if stat.Size <= 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: surface has size %d", stat.Size)
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	return &Surface{fd: fd, data: data}, nil
}

// FD returns the surface handle, or -1 once the surface is closed.
// The fd stays owned by the Surface.
func (s *Surface) FD() int {
	if s == nil {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1
	}
	return s.fd
}

// Size returns the mapped length in bytes, or 0 once closed.
func (s *Surface) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Writable reports whether the mapping allows writes.
func (s *Surface) Writable() bool {
	return s.writable
}

// Bytes returns the mapped memory. The slice aliases shared pages and
// is invalid after Close. Panics if the surface is closed.
func (s *Surface) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("shm: access to closed surface")
	}
	return s.data
}

// Close unmaps the memory and closes the fd. Safe to call more than
// once.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := unix.Munmap(s.data); err != nil {
		firstErr = fmt.Errorf("shm: munmap: %w", err)
	}
	s.data = nil
	if err := unix.Close(s.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("shm: closing fd %d: %w", s.fd, err)
	}
	s.fd = -1
	return firstErr
}
