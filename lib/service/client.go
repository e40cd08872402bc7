// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/factionkeep/factionkeep/lib/codec"
	"github.com/factionkeep/factionkeep/lib/faction"
)

// dialTimeout is the maximum time to wait for a connection to the
// service socket. This is separate from the server's read/write
// timeouts; it covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the server to
// send a response after writing the request. A repair or audit makes
// several homeserver calls, so this is generous.
const responseReadTimeout = 2 * time.Minute

// maxResponseSize is the maximum size of a single CBOR response. A
// leaderboard of every faction fits comfortably.
const maxResponseSize = 4 * 1024 * 1024

// ServiceError is returned by Call when the server responds with
// ok=false. It unwraps to the faction sentinel named by the response
// code, so callers can use errors.Is across the socket.
type ServiceError struct {
	Action  string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Unwrap returns the sentinel for Code, or nil for unclassified
// failures.
func (e *ServiceError) Unwrap() error {
	switch e.Code {
	case "", "internal", "partial":
		return nil
	}
	return faction.FromCode(e.Code, e.Message)
}

// Client sends CBOR requests to the daemon's admin socket. Each Call
// opens a new connection (matching the server's one-request-per-
// connection model), sends the request, reads the response, and
// closes the connection.
type Client struct {
	socketPath string
}

// NewClient creates a client for the socket at socketPath. No
// connection is made until Call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Call sends a CBOR request to the service and decodes the response.
//
// The fields parameter carries the action-specific request fields: a
// map or a struct that encodes to a CBOR map. The client adds "action"
// automatically. Pass nil for actions that take no additional
// parameters.
//
// On success, if result is non-nil and the response contains data, the
// data is CBOR-decoded into result. On failure the error is a
// *ServiceError. Connection and encoding errors are returned as plain
// errors.
func (c *Client) Call(ctx context.Context, action string, fields any, result any) error {
	request := map[string]codec.RawMessage{}
	if fields != nil {
		encoded, err := codec.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encoding request for %q: %w", action, err)
		}
		if err := codec.Unmarshal(encoded, &request); err != nil {
			return fmt.Errorf("request fields for %q must encode as a map: %w", action, err)
		}
	}
	encodedAction, err := codec.Marshal(action)
	if err != nil {
		return fmt.Errorf("encoding action %q: %w", action, err)
	}
	request["action"] = encodedAction

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}

	if !response.OK {
		return &ServiceError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}

	return nil
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side so the server's read sees EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
