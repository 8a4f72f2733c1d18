// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/shm"
	"github.com/bureau-foundation/frameport/lib/wire"
)

// EventKind identifies a message received from the service.
type EventKind int

const (
	// EventSetSurface carries the surface to display, or none.
	EventSetSurface EventKind = iota + 1

	// EventFrameUpdated means the surface holds a new frame.
	EventFrameUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventSetSurface:
		return "set-surface"
	case EventFrameUpdated:
		return "frame-updated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one message from the service.
type Event struct {
	Kind EventKind

	// Surface is the received surface, mapped read-only, for a
	// SetSurface that carried one. The receiver owns it and must Close
	// it. Nil otherwise.
	Surface *shm.Surface
}

// Client is the client side of one preview session.
type Client struct {
	channelID string
	conn      *net.UnixConn

	closeOnce sync.Once
	closeErr  error
}

// Dial asks the service registered under name for a session on
// channelID. The service may still drop the request (unknown channel,
// full queue); that shows up as Receive returning io.EOF.
func Dial(name, channelID string) (*Client, error) {
	message, err := wire.EncodeRequest(channelID)
	if err != nil {
		return nil, err
	}

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("creating reply socket pair: %w", err)
	}
	local, remote := pair[0], pair[1]
	// The service receives its own copy of remote.
	defer unix.Close(remote)

	conn, err := unixConnFromFD(local, "preview-client")
	if err != nil {
		return nil, err
	}

	if err := sendRequest(name, message, remote); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{channelID: channelID, conn: conn}, nil
}

// sendRequest delivers one ConnectionRequest datagram carrying fd.
func sendRequest(name string, message []byte, fd int) error {
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("creating request socket: %w", err)
	}
	defer unix.Close(sock)

	address := SocketAddress(name)
	err = unix.Sendmsg(sock, message, unix.UnixRights(fd), &unix.SockaddrUnix{Name: address}, 0)
	if errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, address)
	}
	if err != nil {
		return fmt.Errorf("sending connection request to %s: %w", address, err)
	}
	return nil
}

// unixConnFromFD wraps fd as a *net.UnixConn. fd is consumed.
func unixConnFromFD(fd int, name string) (*net.UnixConn, error) {
	file := os.NewFile(uintptr(fd), name)
	conn, err := net.FileConn(file)
	file.Close()
	if err != nil {
		return nil, fmt.Errorf("wrapping socket: %w", err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("wrapping socket: got %T, not a Unix socket", conn)
	}
	return unixConn, nil
}

// ChannelID returns the channel id the client asked for.
func (c *Client) ChannelID() string { return c.channelID }

// Receive waits for the next message from the service. It returns
// io.EOF once the service has closed the session, and ctx.Err() if ctx
// ends first. A message that fails validation is returned as an error
// with its fds closed; the session remains usable.
func (c *Client) Receive(ctx context.Context) (Event, error) {
	// Clear a deadline left by an earlier cancelled Receive.
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return Event{}, fmt.Errorf("receiving from service: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		// Wakes the blocked read.
		c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	// One byte more than any valid message so oversize is visible.
	message := make([]byte, wire.HeaderSize+1)
	oob := make([]byte, unix.CmsgSpace(maxReceivedFDs*4))

	n, oobn, flags, _, err := c.conn.ReadMsgUnix(message, oob)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("receiving from service: %w", err)
	}
	fds, _, parseErr := capability.ParseRights(oob[:oobn])
	if n == 0 && len(fds) == 0 {
		return Event{}, io.EOF
	}
	if parseErr != nil {
		capability.CloseAll(fds)
		return Event{}, parseErr
	}
	if flags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		capability.CloseAll(fds)
		return Event{}, fmt.Errorf("%w: message truncated", wire.ErrSizeMismatch)
	}

	header, err := wire.DecodeServiceMessage(message[:n], len(fds))
	if err != nil {
		capability.CloseAll(fds)
		return Event{}, err
	}

	switch header.ID {
	case wire.SetSurfaceMessageID:
		if len(fds) == 0 {
			return Event{Kind: EventSetSurface}, nil
		}
		surface, err := shm.Open(fds[0])
		if err != nil {
			return Event{}, fmt.Errorf("mapping received surface: %w", err)
		}
		return Event{Kind: EventSetSurface, Surface: surface}, nil
	default:
		return Event{Kind: EventFrameUpdated}, nil
	}
}

// Close ends the session. The service notices on its next send.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
