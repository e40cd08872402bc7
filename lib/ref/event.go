// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventType identifies a Matrix event type. It is a named string
// rather than a struct: event types need no validation, only type
// separation from state keys. Constants live in lib/schema.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }

// EventID is a Matrix event ID ("$opaque"). Event IDs are treated as
// opaque beyond the sigil.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw event ID.
func ParseEventID(raw string) (EventID, error) {
	if len(raw) < 2 || raw[0] != '$' {
		return EventID{}, fmt.Errorf("invalid event ID %q: must be '$' followed by content", raw)
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is like ParseEventID but panics on error.
func MustParseEventID(raw string) EventID {
	eventID, err := ParseEventID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseEventID(%q): %v", raw, err))
	}
	return eventID
}

// String returns the event ID.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is unset.
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// yields the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
