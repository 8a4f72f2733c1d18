// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"cmp"
	"slices"
	"sync"

	"github.com/bureau-foundation/frameport/lib/shm"
	"github.com/bureau-foundation/frameport/lib/wire"
)

// Source is one live frame source: its current surface and the
// sessions attached to it. Render goroutines call Publish and
// FrameRendered; any goroutine may attach and detach sessions.
//
// Replacing the surface does not notify anyone. Attached clients keep
// the surface they were given until they are attached again.
type Source struct {
	id string

	mu       sync.Mutex
	surface  *shm.Surface
	sessions map[*Session]struct{}
	closed   bool
}

// NewSource creates a source with no surface.
func NewSource(id string) *Source {
	return &Source{id: id, sessions: make(map[*Session]struct{})}
}

// ID returns the source's id, which is the channel id clients use to
// reach it.
func (src *Source) ID() string { return src.id }

// Publish makes surface the current surface and takes ownership of it.
// The previous surface is closed; clients that were sent it keep their
// own mappings. After Close, Publish closes surface and returns
// ErrSourceClosed.
func (src *Source) Publish(surface *shm.Surface) error {
	src.mu.Lock()
	if src.closed {
		src.mu.Unlock()
		if surface != nil {
			surface.Close()
		}
		return ErrSourceClosed
	}
	previous := src.surface
	src.surface = surface
	src.mu.Unlock()

	if previous != nil && previous != surface {
		return previous.Close()
	}
	return nil
}

// Surface returns the current surface, or nil. The source keeps
// ownership; the surface is valid until the next Publish or Close.
func (src *Source) Surface() *shm.Surface {
	src.mu.Lock()
	defer src.mu.Unlock()
	return src.surface
}

// FrameRendered sends FrameUpdated to every attached session. Called
// by the render path once per frame.
func (src *Source) FrameRendered() {
	src.mu.Lock()
	defer src.mu.Unlock()
	for session := range src.sessions {
		session.NotifyFrameUpdated()
	}
}

// Sessions returns the attached sessions in the order they were
// accepted.
func (src *Source) Sessions() []*Session {
	src.mu.Lock()
	defer src.mu.Unlock()
	sessions := make([]*Session, 0, len(src.sessions))
	for session := range src.sessions {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.sequence, b.sequence)
	})
	return sessions
}

// Len returns the number of attached sessions.
func (src *Source) Len() int {
	src.mu.Lock()
	defer src.mu.Unlock()
	return len(src.sessions)
}

// Close detaches every session, sending each a null surface, and
// closes the current surface. Later attaches send a null surface and
// later publishes are refused.
func (src *Source) Close() error {
	src.mu.Lock()
	if src.closed {
		src.mu.Unlock()
		return nil
	}
	src.closed = true
	for session := range src.sessions {
		delete(src.sessions, session)
		session.detachedFrom(src)
	}
	surface := src.surface
	src.surface = nil
	src.mu.Unlock()

	if surface != nil {
		return surface.Close()
	}
	return nil
}

// attach adds session and sends it the current surface.
func (src *Source) attach(session *Session) {
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.closed {
		session.mu.Lock()
		session.source = nil
		session.sendLocked(wire.EncodeSetSurface(false), -1)
		session.mu.Unlock()
		return
	}
	if session.attachedTo(src, src.surface.FD()) {
		src.sessions[session] = struct{}{}
	}
}

// detach removes session and sends it a null surface.
func (src *Source) detach(session *Session) {
	src.mu.Lock()
	defer src.mu.Unlock()
	delete(src.sessions, session)
	session.detachedFrom(src)
}

// forget removes session without sending anything.
func (src *Source) forget(session *Session) {
	src.mu.Lock()
	defer src.mu.Unlock()
	delete(src.sessions, session)
}
