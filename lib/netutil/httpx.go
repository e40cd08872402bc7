// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads from the homeserver.
package netutil

import "io"

// MaxResponseSize caps JSON API response bodies at 64 MB. Initial
// /sync responses for a bot in many rooms are the largest payloads
// factionkeep reads; anything beyond this is a misbehaving server.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use it instead of io.ReadAll on HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
