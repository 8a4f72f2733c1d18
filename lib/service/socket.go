// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/frameport/lib/codec"
)

// ActionFunc answers one request. raw is the whole CBOR request map,
// action field included, so the handler can decode its own fields.
//
// A nil result produces {ok: true}; anything else is marshaled into
// the response's data field. A non-nil error produces {ok: false}
// with the error text.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every reply on the socket.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer answers CBOR requests on a Unix stream socket, one
// request per connection: the client writes a map with an "action"
// key, the server writes a Response and hangs up.
type SocketServer struct {
	socketPath string
	actions    map[string]ActionFunc
	logger     *slog.Logger

	ready  chan struct{}
	active sync.WaitGroup
}

// NewSocketServer returns a server for socketPath. Register actions
// with Handle, then call Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		actions:    make(map[string]ActionFunc),
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

// Handle registers handler for action. Registering the same action
// twice panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, taken := s.actions[action]; taken {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.actions[action] = handler
}

// Ready is closed once Serve is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens on the socket path until ctx is done, then waits for
// requests in flight. A stale socket file is replaced, and the file is
// removed when Serve returns.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("status socket listening", "path", s.socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("status socket accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			s.serveConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

const (
	// requestTimeout bounds how long a client may take to send its
	// request.
	requestTimeout = 30 * time.Second

	// responseTimeout bounds writing the reply.
	responseTimeout = 10 * time.Second

	// maxRequestSize caps a request. Status requests are a few dozen
	// bytes.
	maxRequestSize = 64 * 1024
)

// serveConnection reads one request, dispatches it, and replies.
func (s *SocketServer) serveConnection(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(requestTimeout))

	// CBOR items are self-delimiting, so a single Decode consumes
	// exactly the request.
	var raw codec.RawMessage
	err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw)
	if errors.Is(err, io.EOF) {
		return
	}

	var response Response
	if err != nil {
		response = failure("invalid request: %v", err)
	} else {
		response = s.dispatch(ctx, raw)
	}

	conn.SetWriteDeadline(time.Now().Add(responseTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("status socket reply not delivered", "error", err)
	}
}

// dispatch routes raw to its action and builds the reply.
func (s *SocketServer) dispatch(ctx context.Context, raw codec.RawMessage) Response {
	var envelope struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &envelope); err != nil {
		return failure("invalid request: %v", err)
	}
	if envelope.Action == "" {
		return failure("missing required field: action")
	}
	handler, ok := s.actions[envelope.Action]
	if !ok {
		return failure("unknown action %q", envelope.Action)
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.logger.Debug("status action failed", "action", envelope.Action, "error", err)
		return Response{Error: err.Error()}
	}
	if result == nil {
		return Response{OK: true}
	}
	data, err := codec.Marshal(result)
	if err != nil {
		return failure("internal: marshaling response: %v", err)
	}
	return Response{OK: true, Data: data}
}

func failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}
