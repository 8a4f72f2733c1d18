// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/wire"
)

// sessionOwner is notified about a session's lifecycle. *Service
// implements it.
type sessionOwner interface {
	// sessionFailed is called once, when the session's channel fails.
	sessionFailed(*Session)

	// sessionClosed is called once, from Session.Close.
	sessionClosed(*Session)
}

// Session is one connected client. It owns the channel to the client
// and holds a non-owning reference to at most one Source.
//
// Sessions are created by Service.Run and must be released with Close
// by the application, normally from Handler.SessionClosed. Attach,
// Detach, and NotifyFrameUpdated may be called from any goroutine;
// after Close, or once the channel has failed, they do nothing.
type Session struct {
	id        uuid.UUID
	sequence  uint64
	channelID string
	openedAt  time.Time
	owner     sessionOwner
	logger    *slog.Logger

	// mu serialises sends so a session's messages reach the client in
	// the order they were issued.
	mu      sync.Mutex
	channel *capability.Channel
	source  *Source
	closed  bool
	failed  bool
}

func newSession(sequence uint64, channelID string, channel *capability.Channel, owner sessionOwner, openedAt time.Time, logger *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:        id,
		sequence:  sequence,
		channelID: channelID,
		openedAt:  openedAt,
		owner:     owner,
		channel:   channel,
		logger:    logger.With("session_id", id.String(), "channel_id", channelID),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// ChannelID returns the channel id the client connected with.
func (s *Session) ChannelID() string { return s.channelID }

// OpenedAt returns when the consumer created the session.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Source returns the source the session is attached to, or nil.
func (s *Session) Source() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Closed reports whether the session has been closed or its channel
// has failed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.failed
}

// Attach binds the session to source and sends the source's current
// surface, or a SetSurface without a surface when the source has none.
// A session attached elsewhere is moved without an intermediate
// null-surface message. Attach(nil) is Detach.
func (s *Session) Attach(source *Source) {
	if source == nil {
		s.Detach()
		return
	}
	if previous := s.Source(); previous != nil && previous != source {
		previous.forget(s)
	}
	source.attach(s)
}

// Detach sends a SetSurface without a surface and unbinds the session
// from its source. The source can change afterwards without the client
// hearing about it.
func (s *Session) Detach() {
	if source := s.Source(); source != nil {
		source.detach(s)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(wire.EncodeSetSurface(false), -1)
}

// NotifyFrameUpdated tells the client a new frame is in the surface it
// holds. It does nothing unless the session is attached.
func (s *Session) NotifyFrameUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return
	}
	s.sendLocked(wire.EncodeFrameUpdated(), -1)
}

// Close releases the channel and unbinds the session from its source
// without telling the client. Only the first call has any effect.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	source := s.source
	s.source = nil
	s.mu.Unlock()

	if source != nil {
		source.forget(s)
	}
	if s.owner != nil {
		s.owner.sessionClosed(s)
	}
	return s.channel.Close()
}

// attachedTo records source and sends its surface. Called by Source
// with the source lock held.
func (s *Session) attachedTo(source *Source, surfaceFD int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.failed {
		return false
	}
	s.source = source
	s.sendLocked(wire.EncodeSetSurface(surfaceFD >= 0), surfaceFD)
	return true
}

// detachedFrom clears source and sends a null surface. Called by
// Source with the source lock held.
func (s *Session) detachedFrom(source *Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source != source {
		return
	}
	s.source = nil
	s.sendLocked(wire.EncodeSetSurface(false), -1)
}

// sendLocked sends one message. A timeout drops the message. Any other
// failure has already closed the channel; the owner hears about it
// exactly once. Caller holds s.mu.
func (s *Session) sendLocked(message []byte, fd int) {
	if s.closed || s.failed {
		return
	}
	err := s.channel.Send(message, fd)
	switch {
	case err == nil:
		return
	case errors.Is(err, capability.ErrSendTimedOut):
		s.logger.Debug("send timed out, message dropped", "error", err)
		return
	case errors.Is(err, capability.ErrClosed):
		return
	case errors.Is(err, capability.ErrPeerGone):
		s.logger.Info("client gone, closing channel", "error", err)
	default:
		s.logger.Warn("send failed, closing channel", "error", err)
	}
	s.failed = true
	if s.owner != nil {
		s.owner.sessionFailed(s)
	}
}

// SessionInfo describes a session for the status socket.
type SessionInfo struct {
	ID        string    `cbor:"id"`
	ChannelID string    `cbor:"channel_id"`
	Source    string    `cbor:"source,omitempty"`
	OpenedAt  time.Time `cbor:"opened_at"`
	Failed    bool      `cbor:"failed,omitempty"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:        s.id.String(),
		ChannelID: s.channelID,
		OpenedAt:  s.openedAt,
		Failed:    s.failed,
	}
	if s.source != nil {
		info.Source = s.source.ID()
	}
	return info
}
