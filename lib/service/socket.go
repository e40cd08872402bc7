// Copyright 2026 The Factionkeep Authors
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

	"github.com/google/uuid"

	"github.com/factionkeep/factionkeep/lib/codec"
	"github.com/factionkeep/factionkeep/lib/faction"
)

// ActionFunc handles one admin action. raw is the whole CBOR request,
// "action" field included; the handler decodes its own fields from it.
//
// A nil result produces {ok: true}. A non-nil result is CBOR-encoded
// into the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope for every reply on the admin socket.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`

	// Code is faction.Code of the failure, so the client can rebuild
	// an error that matches the faction sentinels.
	Code string           `cbor:"code,omitempty"`
	Data codec.RawMessage `cbor:"data,omitempty"`
}

// requestHeader is the part of every request the server routes on.
type requestHeader struct {
	Action string `cbor:"action"`
}

const (
	// readTimeout bounds how long a connected client may take to send
	// its request.
	readTimeout = 30 * time.Second

	writeTimeout = 10 * time.Second

	// maxRequestSize caps one request. Admin requests carry a few
	// faction names and room IDs.
	maxRequestSize = 64 * 1024
)

// SocketServer is the operator's admin endpoint: one CBOR request and
// one CBOR response per connection on a unix socket readable only by
// the service's user. Register actions with Handle, then call Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// ActionTimeout bounds each handler. Zero leaves handlers bounded
	// only by Serve's context.
	ActionTimeout time.Duration

	inflight sync.WaitGroup
}

// NewSocketServer returns a server for socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. Registering an action twice is
// a programming error and panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve listens until ctx is cancelled, then waits for in-flight
// actions to finish. A stale socket file from an earlier run is
// replaced; the socket is mode 0600 and removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	defer os.Remove(s.socketPath)
	defer listener.Close()

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("admin socket listening", "path", s.socketPath, "actions", len(s.handlers))
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("admin socket accept failed", "error", err)
			continue
		}
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.serveConnection(ctx, conn)
		}()
	}

	s.inflight.Wait()
	s.logger.Info("admin socket stopped", "path", s.socketPath)
	return nil
}

func (s *SocketServer) listen() (net.Listener, error) {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		os.Remove(s.socketPath)
		return nil, fmt.Errorf("restricting %s: %w", s.socketPath, err)
	}
	return listener, nil
}

func (s *SocketServer) serveConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) {
			s.respond(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		}
		return
	}
	var header requestHeader
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.respond(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if header.Action == "" {
		s.respond(conn, Response{Error: "missing required field: action"})
		return
	}
	handler, exists := s.handlers[header.Action]
	if !exists {
		s.respond(conn, Response{Error: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	logger := s.logger.With("request_id", uuid.NewString(), "action", header.Action)
	started := time.Now()
	result, err := s.run(ctx, handler, raw)
	if err != nil {
		logger.Info("admin action failed", "error", err, "duration", time.Since(started))
		s.respond(conn, Response{Error: err.Error(), Code: faction.Code(err)})
		return
	}
	logger.Info("admin action handled", "duration", time.Since(started))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			logger.Error("encoding admin response", "error", err)
			s.respond(conn, Response{Error: fmt.Sprintf("encoding response: %v", err), Code: "internal"})
			return
		}
		response.Data = data
	}
	s.respond(conn, response)
}

// run calls handler under ActionTimeout and turns a panic into an
// internal error so one bad action cannot take the daemon down.
func (s *SocketServer) run(ctx context.Context, handler ActionFunc, raw []byte) (result any, err error) {
	if s.ActionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ActionTimeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			result, err = nil, fmt.Errorf("action panicked: %v", recovered)
		}
	}()
	return handler(ctx, raw)
}

// respond writes one response. The connection closes right after, so
// a failed write is only worth a debug line.
func (s *SocketServer) respond(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing admin response", "error", err)
	}
}
