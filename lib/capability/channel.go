// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/frameport/lib/netutil"
)

// Send outcomes other than success.
var (
	// ErrSendTimedOut means the write deadline expired because the
	// peer is not draining its socket. The message was dropped and the
	// channel remains open.
	ErrSendTimedOut = errors.New("capability: send timed out")

	// ErrPeerGone means the peer's end of the socket no longer exists.
	ErrPeerGone = errors.New("capability: peer gone")

	// ErrClosed means the channel was already closed; nothing was sent.
	ErrClosed = errors.New("capability: channel closed")
)

// DefaultSendTimeout bounds a single Send. Short enough that a render
// callback holding a lock is never stalled for long by one client.
const DefaultSendTimeout = 20 * time.Millisecond

// Conn is the subset of [net.UnixConn] a Channel writes to.
type Conn interface {
	WriteMsgUnix(b, oob []byte, addr *net.UnixAddr) (n, oobn int, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Channel is the sending side of a connected seqpacket socket. All
// methods are safe for concurrent use.
type Channel struct {
	mu      sync.Mutex
	conn    Conn
	timeout time.Duration
}

// NewChannel wraps an existing connection. A timeout <= 0 selects
// DefaultSendTimeout.
func NewChannel(conn Conn, timeout time.Duration) *Channel {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Channel{conn: conn, timeout: timeout}
}

// Open consumes handle and returns a Channel over the socket it owns.
// The handle is empty afterwards whether or not Open succeeds.
func Open(handle *Handle, timeout time.Duration) (*Channel, error) {
	fd := handle.Release()
	if fd < 0 {
		return nil, fmt.Errorf("opening channel: %w", ErrClosed)
	}
	file := os.NewFile(uintptr(fd), "capability-channel")
	// FileConn duplicates the descriptor; the original is closed here
	// on both paths.
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("opening channel: fd is %T, not a Unix socket", conn)
	}
	return NewChannel(unixConn, timeout), nil
}

// Send writes one message with an optional fd (fd < 0 for none). The
// fd is copied into the peer by the kernel; the caller keeps its own.
//
// On any failure other than a timeout the channel closes before Send
// returns.
func (c *Channel) Send(message []byte, fd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return c.failLocked(err)
	}
	if _, _, err := c.conn.WriteMsgUnix(message, oob, nil); err != nil {
		if netutil.IsTimeout(err) {
			return fmt.Errorf("%w: %w", ErrSendTimedOut, err)
		}
		return c.failLocked(err)
	}
	return nil
}

// failLocked closes the channel after a send failure and classifies
// the error. Caller holds c.mu.
func (c *Channel) failLocked(err error) error {
	// The close error is secondary to the send error being reported.
	_ = c.closeLocked()
	if netutil.IsPeerGone(err) {
		return fmt.Errorf("%w: %w", ErrPeerGone, err)
	}
	return err
}

// Close releases the socket. Only the first call does anything; later
// calls return nil.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Channel) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}

// Closed reports whether the channel has been closed.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil
}
