// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/wattson-project/wattson/lib/codec"
)

const dialTimeout = 5 * time.Second

// responseReadTimeout covers the server's read and write timeouts
// plus handler execution.
const responseReadTimeout = 45 * time.Second

const maxResponseSize = 64 * 1024

// CallError is returned by Call when the server answered with
// ok=false; transport and decoding failures are plain errors.
type CallError struct {
	Action  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("control error on %q: %s", e.Action, e.Message)
}

// Client talks to a control socket. Each Call opens a fresh
// connection, matching the server's one-request-per-connection model.
type Client struct {
	socketPath string
}

// NewClient returns a client for the control socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends one request and decodes the response data into result
// when result is non-nil. fields carries the handler-specific request
// fields; the "action" key is added here and must not be present.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	defer conn.Close()

	response, err := roundTrip(conn, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &CallError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// Lease is a held lease over the control socket. Close releases it.
type Lease struct {
	conn net.Conn

	// Granted is false when the server has leasing disabled; the
	// server has already closed its side and Close is a no-op beyond
	// releasing the connection.
	Granted bool
}

// Close releases the lease by closing the connection.
func (l *Lease) Close() error {
	return l.conn.Close()
}

// EnterLease takes a lease under key and keeps the underlying
// connection open until the returned Lease is closed. The lease also
// releases if this process exits.
func (c *Client) EnterLease(ctx context.Context, key string) (*Lease, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("entering lease %q on %s: %w", key, c.socketPath, err)
	}

	request := map[string]any{"action": ActionEnterLease, "key": key}
	response, err := roundTripOpen(conn, request)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("entering lease %q on %s: %w", key, c.socketPath, err)
	}
	if !response.OK {
		conn.Close()
		return nil, &CallError{Action: ActionEnterLease, Message: response.Error}
	}

	var ack EnterLeaseResponse
	if len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, &ack); err != nil {
			conn.Close()
			return nil, fmt.Errorf("decoding lease response: %w", err)
		}
	}
	return &Lease{conn: conn, Granted: ack.Granted}, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	return conn, nil
}

// roundTrip writes request and reads the response, half-closing the
// write side so the server sees a clean EOF.
func roundTrip(conn net.Conn, request any) (*Response, error) {
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}
	return readResponse(conn)
}

// roundTripOpen is roundTrip without the half-close: the lease
// connection must stay fully open, since its closure is the release
// signal.
func roundTripOpen(conn net.Conn, request any) (*Response, error) {
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	return readResponse(conn)
}

func readResponse(conn net.Conn) (*Response, error) {
	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	return &response, nil
}
