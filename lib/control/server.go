// Copyright 2026 The Wattson Authors
// SPDX-License-Identifier: Apache-2.0

package control

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

	"github.com/wattson-project/wattson/lib/codec"
)

// ActionFunc processes one request. raw is the full CBOR request
// including the "action" field; handlers decode their own fields from
// it. Return a value for the response's data field, nil for a bare
// {ok: true}, or an error for a failure response.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// LeaseFunc takes a lease under key and returns its liveness token,
// or nil when leasing is disabled.
type LeaseFunc func(ctx context.Context, key string) (io.Closer, error)

// readTimeout bounds the wait for a client's request. A well-behaved
// client writes immediately after connecting.
const readTimeout = 30 * time.Second

const writeTimeout = 10 * time.Second

// maxRequestSize bounds a single CBOR request. Control requests are a
// handful of fields; 64 KB is beyond generous.
const maxRequestSize = 64 * 1024

// Server serves the control protocol on a Unix socket. It implements
// the supervisor's Service interface. Register actions with Handle
// and the lease action with HandleLease before Run.
type Server struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// leaseAction routes to enterLease instead of the one-shot
	// handler path.
	leaseAction string
	enterLease  LeaseFunc

	// connections tracks in-flight handlers, held lease connections
	// included. Run waits for them on the way out.
	connections sync.WaitGroup
}

// NewServer creates a control server listening on socketPath once Run
// is called.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger.With("component", "control"),
	}
}

// Handle registers a one-shot handler for action. Panics on a
// duplicate registration; that is a wiring bug, not a runtime
// condition.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("control: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// HandleLease registers the lease action. Its connection stays open
// after the response; the lease's liveness token closes when the
// connection does.
func (s *Server) HandleLease(action string, enter LeaseFunc) {
	if s.enterLease != nil {
		panic("control: lease handler already registered")
	}
	s.leaseAction = action
	s.enterLease = enter
}

// Name implements the supervisor's Service interface.
func (s *Server) Name() string { return "control-socket" }

// Run accepts connections until ctx is cancelled, then waits for
// in-flight handlers. A held lease connection terminates with the
// context: its token closes during shutdown, which is moot since the
// arbiter is shutting down too.
func (s *Server) Run(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.connections.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// One CBOR value per request; CBOR is self-delimiting so no
	// framing is needed. LimitReader caps memory per connection.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if s.enterLease != nil && header.Action == s.leaseAction {
		s.handleLease(ctx, conn, []byte(raw))
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

// handleLease takes the lease, acknowledges it, and then sits on the
// connection until the client goes away.
func (s *Server) handleLease(ctx context.Context, conn net.Conn, raw []byte) {
	var request EnterLeaseRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if request.Key == "" {
		s.writeError(conn, "missing required field: key")
		return
	}

	token, err := s.enterLease(ctx, request.Key)
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}
	if token == nil {
		s.writeSuccess(conn, EnterLeaseResponse{Granted: false})
		return
	}
	defer token.Close()

	s.writeSuccess(conn, EnterLeaseResponse{Granted: true})
	s.logger.Info("lease held over control socket", "key", request.Key)

	// Block until the client closes or the server shuts down. The
	// read deadline is lifted: the lease lives as long as the client
	// chooses.
	conn.SetReadDeadline(time.Time{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	buffer := make([]byte, 64)
	for {
		if _, err := conn.Read(buffer); err != nil {
			break
		}
	}
	s.logger.Info("lease connection closed", "key", request.Key)
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
