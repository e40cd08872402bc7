// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package faction

import (
	"time"

	"github.com/factionkeep/factionkeep/lib/ref"
)

// Faction is a faction record as the store holds it.
type Faction struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Points int64  `json:"points"`

	// Leader is zero when unassigned.
	Leader ref.UserID `json:"leader,omitzero"`

	// RenamedFrom is set while a rename has committed in the store but
	// not yet on the platform.
	RenamedFrom string    `json:"renamed_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlatformName is the name the faction's rooms carry: the old name
// while a rename is unfinished, Name otherwise.
func (f Faction) PlatformName() string {
	if f.RenamedFrom != "" {
		return f.RenamedFrom
	}
	return f.Name
}

// LeaderDisplay renders the leader for replies.
func (f Faction) LeaderDisplay() string {
	if f.Leader.IsZero() {
		return "unassigned"
	}
	return f.Leader.String()
}

// Info is the public summary of one faction.
type Info struct {
	Faction
	MemberCount int `json:"member_count"`
}

// Conflict is an active edge in the conflict graph, as declared.
type Conflict struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	DeclaredAt time.Time `json:"declared_at"`
}

// TrustedGroup is a room whose joined members may run privileged
// commands from Workspace.
type TrustedGroup struct {
	Workspace ref.RoomID `json:"workspace"`
	Group     ref.RoomID `json:"group"`

	// AddedBy is zero for groups added from the operator socket.
	AddedBy ref.UserID `json:"added_by,omitzero"`
	AddedAt time.Time  `json:"added_at"`
}

// AuditReport compares store membership with platform token holders.
type AuditReport struct {
	Faction string `json:"faction"`

	// MissingToken are members in the store without the platform token.
	MissingToken []ref.UserID `json:"missing_token"`

	// StrayToken hold the token without a store membership.
	StrayToken []ref.UserID `json:"stray_token"`
}

// Consistent reports whether the audit found no drift.
func (r AuditReport) Consistent() bool {
	return len(r.MissingToken) == 0 && len(r.StrayToken) == 0
}
