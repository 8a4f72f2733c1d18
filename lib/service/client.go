// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/frameport/lib/codec"
)

// dialTimeout bounds the connect phase of a Call.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long a Call waits for the response after
// writing the request. It covers the server's read and write timeouts
// plus handler time.
const responseReadTimeout = 45 * time.Second

// maxResponseSize matches the largest status reply with room to
// spare: a session listing is about 150 bytes per session.
const maxResponseSize = 4 * 1024 * 1024

// ServiceError is returned by Call when the server responds with
// ok=false.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client sends CBOR requests to a service socket. Each Call opens a
// new connection, matching the server's one-request-per-connection
// model.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath. It does not
// connect until Call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends action with the given extra fields and decodes the
// response data into result (when both are non-nil). A response with
// ok=false is returned as *ServiceError; connection and encoding
// failures are plain errors.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	raw, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	var response Response
	if err := codec.Unmarshal(raw, &response); err != nil {
		return fmt.Errorf("decoding response for %q: %w", action, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// CallRaw is Call without decoding: it returns the data field of a
// successful response as raw CBOR.
func (c *Client) CallRaw(ctx context.Context, action string) (codec.RawMessage, error) {
	var data codec.RawMessage
	if err := c.Call(ctx, action, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// send connects, writes request, and returns the raw response.
func (c *Client) send(ctx context.Context, request any) (codec.RawMessage, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(responseReadTimeout))
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return raw, nil
}
