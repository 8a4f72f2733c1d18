// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/frameport/lib/capability"
	"github.com/bureau-foundation/frameport/lib/netutil"
)

// Handler receives sessions from Service.Run. Both methods are called
// on the goroutine running Run, never concurrently with each other.
type Handler interface {
	// SessionOpened is called once per accepted request, in acceptance
	// order. The handler owns the session from here on.
	SessionOpened(session *Session)

	// SessionClosed is called once for a session whose channel failed.
	// The handler should Close the session.
	SessionClosed(session *Session)
}

// HandlerFuncs adapts plain functions to Handler. A nil Opened closes
// every new session; a nil Closed closes the failed session.
type HandlerFuncs struct {
	Opened func(*Session)
	Closed func(*Session)
}

// SessionOpened implements Handler.
func (h HandlerFuncs) SessionOpened(session *Session) {
	if h.Opened == nil {
		session.Close()
		return
	}
	h.Opened(session)
}

// SessionClosed implements Handler.
func (h HandlerFuncs) SessionClosed(session *Session) {
	if h.Closed == nil {
		session.Close()
		return
	}
	h.Closed(session)
}

// Service is a running preview hand-off service.
type Service struct {
	name     string
	registry *Registry
	options  Options
	logger   *slog.Logger

	inbox    *inbox
	listener *listener

	consuming atomic.Bool
	closeOnce sync.Once
	closeErr  error
	stopping  chan struct{}
	closed    chan struct{}

	mu           sync.Mutex
	sessions     map[*Session]struct{}
	nextSequence uint64
}

func newService(name string, registry *Registry, conn endpoint, options Options) *Service {
	options = options.withDefaults()
	logger := options.Logger.With("service", name)
	service := &Service{
		name:     name,
		registry: registry,
		options:  options,
		logger:   logger,
		inbox:    newInbox(options.QueueCapacity),
		stopping: make(chan struct{}),
		closed:   make(chan struct{}),
		sessions: make(map[*Session]struct{}),
	}
	service.listener = &listener{
		endpoint: conn,
		inbox:    service.inbox,
		policy:   options.ReceiveErrors,
		backoff:  options.RetryBackoff,
		clock:    options.Clock,
		logger:   logger,
		stopping: service.stopping,
		done:     make(chan struct{}),
	}
	return service
}

func (s *Service) start() {
	s.logger.Info("preview service listening",
		"address", SocketAddress(s.name),
		"queue_capacity", s.options.QueueCapacity,
		"send_timeout", s.options.SendTimeout,
		"receive_errors", s.options.ReceiveErrors.String(),
	)
	go s.listener.run()
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Dead is closed once the listener has stopped, whether from Close or
// from a fatal receive error.
func (s *Service) Dead() <-chan struct{} { return s.listener.done }

// Run is the consumer loop. Each wake-up drains the pending queue,
// creating a Session per request and passing it to
// handler.SessionOpened in acceptance order, then delivers
// handler.SessionClosed for every session whose channel failed since
// the last wake-up.
//
// Run returns nil when ctx is done or the service is closed. Only one
// Run may be active at a time.
func (s *Service) Run(ctx context.Context, handler Handler) error {
	if !s.consuming.CompareAndSwap(false, true) {
		return ErrConsumerActive
	}
	defer s.consuming.Store(false)

	for {
		s.dispatch(handler)
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			s.dispatch(handler)
			return nil
		case <-s.inbox.notify:
		}
	}
}

// dispatch delivers everything currently in the inbox.
func (s *Service) dispatch(handler Handler) {
	requests, disconnected := s.inbox.take()
	for _, request := range requests {
		session, err := s.openSession(request)
		if err != nil {
			s.logger.Warn("could not open session", "channel_id", request.ChannelID, "error", err)
			continue
		}
		s.inbox.opened()
		s.logger.Info("session opened", "session_id", session.ID().String(), "channel_id", session.ChannelID())
		handler.SessionOpened(session)
	}
	for _, session := range disconnected {
		handler.SessionClosed(session)
	}
}

// openSession moves the request's capability into a new session.
func (s *Service) openSession(request ConnectionRequest) (*Session, error) {
	channel, err := capability.Open(request.Client, s.options.SendTimeout)
	if err != nil {
		return nil, fmt.Errorf("opening client channel: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSequence++
	session := newSession(s.nextSequence, request.ChannelID, channel, s, s.options.Clock.Now(), s.logger)
	s.sessions[session] = struct{}{}
	return session, nil
}

// sessionFailed implements sessionOwner.
func (s *Service) sessionFailed(session *Session) {
	s.inbox.reportDisconnected(session)
}

// sessionClosed implements sessionOwner.
func (s *Service) sessionClosed(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
	s.logger.Debug("session closed", "session_id", session.ID().String(), "channel_id", session.ChannelID())
}

// Sessions returns a snapshot of every open session in acceptance
// order.
func (s *Service) Sessions() []SessionInfo {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	slices.SortFunc(sessions, func(a, b *Session) int {
		return cmp.Compare(a.sequence, b.sequence)
	})
	infos := make([]SessionInfo, len(sessions))
	for i, session := range sessions {
		infos[i] = session.Info()
	}
	return infos
}

// Stats is a snapshot of a service's counters.
type Stats struct {
	Name          string `cbor:"name"`
	Listening     bool   `cbor:"listening"`
	QueueCapacity int    `cbor:"queue_capacity"`
	Pending       int    `cbor:"pending"`
	Sessions      int    `cbor:"sessions"`

	// Accepted counts requests that passed validation and were
	// queued.
	Accepted uint64 `cbor:"accepted"`

	// Rejected counts malformed requests.
	Rejected uint64 `cbor:"rejected"`

	// Dropped counts valid requests discarded because the pending
	// queue was full.
	Dropped uint64 `cbor:"dropped"`

	Opened         uint64 `cbor:"opened"`
	Disconnected   uint64 `cbor:"disconnected"`
	ReceiveRetries uint64 `cbor:"receive_retries"`
}

// Stats returns the service's current counters.
func (s *Service) Stats() Stats {
	counters, pending := s.inbox.snapshot()

	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()

	listening := true
	select {
	case <-s.listener.done:
		listening = false
	default:
	}

	return Stats{
		Name:           s.name,
		Listening:      listening,
		QueueCapacity:  s.options.QueueCapacity,
		Pending:        pending,
		Sessions:       sessions,
		Accepted:       counters.accepted,
		Rejected:       counters.rejected,
		Dropped:        counters.dropped,
		Opened:         counters.opened,
		Disconnected:   counters.disconnected,
		ReceiveRetries: counters.receiveRetries,
	}
}

// Close stops the listener, destroys requests that were never
// delivered, and releases the name. Open sessions belong to the
// application and are left alone. A Run in progress delivers any
// outstanding SessionClosed notifications and returns.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopping)
		// The listener closes the endpoint itself when a receive
		// fails, so an already-closed endpoint is not an error here.
		if err := s.listener.endpoint.Close(); err != nil && !netutil.IsClosed(err) {
			s.closeErr = err
		}
		<-s.listener.done

		for _, request := range s.inbox.takeRequests() {
			request.Close()
		}
		removeSocketFile(s.name)
		s.registry.release(s.name, s)
		close(s.closed)
		s.logger.Info("preview service closed")
	})
	return s.closeErr
}
