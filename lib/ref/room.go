// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// RoomID is a validated Matrix room ID (e.g., "!abc123:example.org").
//
// Room IDs are assigned by the homeserver. Factionkeep never builds
// them; they arrive from room creation, alias resolution and /sync and
// are parsed at that boundary. Room version 12 IDs have no server
// suffix, so only the '!' sigil and a non-empty body are required.
type RoomID struct {
	id string
}

// ParseRoomID validates and wraps a raw Matrix room ID.
func ParseRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return RoomID{}, fmt.Errorf("empty room ID")
	}
	if raw[0] != '!' {
		return RoomID{}, fmt.Errorf("room ID must start with '!': %q", raw)
	}
	if len(raw) < 2 || raw[1] == ':' {
		return RoomID{}, fmt.Errorf("room ID has empty local part: %q", raw)
	}
	if strings.HasSuffix(raw, ":") {
		return RoomID{}, fmt.Errorf("room ID has empty server name: %q", raw)
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return RoomID{}, fmt.Errorf("room ID contains whitespace: %q", raw)
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is like ParseRoomID but panics on error.
func MustParseRoomID(raw string) RoomID {
	roomID, err := ParseRoomID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomID(%q): %v", raw, err))
	}
	return roomID
}

// String returns the full room ID.
func (r RoomID) String() string { return r.id }

// IsZero reports whether the RoomID is unset.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RoomID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (r *RoomID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RoomID{}
		return nil
	}
	parsed, err := ParseRoomID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
