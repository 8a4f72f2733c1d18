// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/wire"
)

// sentMessage is one WriteMsgUnix observed by recordingConn.
type sentMessage struct {
	id  uint32
	fds []int
}

// recordingConn is a capability.Conn that records every write. err, if
// set, is returned by the next write instead of recording it.
type recordingConn struct {
	mu     sync.Mutex
	sent   []sentMessage
	err    error
	closes int
}

func (c *recordingConn) WriteMsgUnix(b, oob []byte, _ *net.UnixAddr) (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		err := c.err
		c.err = nil
		return 0, 0, err
	}
	header, err := wire.DecodeHeader(b)
	if err != nil {
		return 0, 0, err
	}
	fds, _, err := capability.ParseRights(oob)
	if err != nil {
		return 0, 0, err
	}
	c.sent = append(c.sent, sentMessage{id: header.ID, fds: fds})
	return len(b), len(oob), nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *recordingConn) failNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *recordingConn) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *recordingConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// recordingOwner counts lifecycle callbacks.
type recordingOwner struct {
	mu     sync.Mutex
	failed []*Session
	closed []*Session
}

func (o *recordingOwner) sessionFailed(session *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, session)
}

func (o *recordingOwner) sessionClosed(session *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, session)
}

func (o *recordingOwner) counts() (failed, closed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.failed), len(o.closed)
}

// newTestSession builds a session over a recordingConn.
func newTestSession(t *testing.T, channelID string) (*Session, *recordingConn, *recordingOwner) {
	t.Helper()
	conn := &recordingConn{}
	owner := &recordingOwner{}
	session := newSession(1, channelID, capability.NewChannel(conn, 0), owner, time.Unix(0, 0), slog.New(slog.DiscardHandler))
	return session, conn, owner
}

// messageIDs returns the ids of sent messages in order.
func messageIDs(messages []sentMessage) []uint32 {
	ids := make([]uint32, len(messages))
	for i, message := range messages {
		ids[i] = message.id
	}
	return ids
}
