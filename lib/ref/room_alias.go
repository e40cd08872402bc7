// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g.,
// "#faction.red-team:example.org").
//
// Aliases arriving from users or the homeserver are parsed with
// ParseRoomAlias and only checked structurally. Aliases factionkeep
// creates itself go through NewRoomAlias, which also enforces the
// localpart character set.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw room alias.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := parseSigilID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error.
func MustParseRoomAlias(raw string) RoomAlias {
	alias, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return alias
}

// NewRoomAlias builds "#localpart:server" from a localpart restricted
// to a-z, 0-9 and . _ = - /.
func NewRoomAlias(localpart string, server ServerName) (RoomAlias, error) {
	if err := validateLocalpart(localpart); err != nil {
		return RoomAlias{}, fmt.Errorf("room alias: %w", err)
	}
	if server.IsZero() {
		return RoomAlias{}, fmt.Errorf("room alias %q: server name is empty", localpart)
	}
	return RoomAlias{alias: "#" + localpart + ":" + server.name}, nil
}

// String returns the full alias.
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is unset.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias without the '#' sigil and ':server'.
func (a RoomAlias) Localpart() string {
	localpart, _, _ := parseSigilID(a.alias, '#', "room alias")
	return localpart
}

// MarshalText implements encoding.TextMarshaler.
func (a RoomAlias) MarshalText() ([]byte, error) {
	return []byte(a.alias), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (a *RoomAlias) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = RoomAlias{}
		return nil
	}
	parsed, err := ParseRoomAlias(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
