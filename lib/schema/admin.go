// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"time"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
)

// Admin socket actions. Every action runs as the system actor.
const (
	AdminActionStatus        = "status"
	AdminActionLeaderboard   = "leaderboard"
	AdminActionReset         = "reset"
	AdminActionTrustedList   = "trusted-list"
	AdminActionTrustedAdd    = "trusted-add"
	AdminActionTrustedRemove = "trusted-remove"
	AdminActionRepair        = "repair"
	AdminActionAudit         = "audit"
)

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version        string     `json:"version"`
	UserID         ref.UserID `json:"user_id"`
	UptimeSeconds  int64      `json:"uptime_seconds"`
	NextReset      time.Time  `json:"next_reset,omitzero"`
	SchemaVersion  int        `json:"schema_version"`
	Factions       int        `json:"factions"`
	Members        int        `json:"members"`
	ActiveConflict int        `json:"active_conflicts"`
	PendingRenames int        `json:"pending_renames"`
}

// LeaderboardRequest asks for the top factions. Zero Limit returns all.
type LeaderboardRequest struct {
	Limit int `json:"limit,omitempty"`
}

// LeaderboardResponse lists factions by descending points.
type LeaderboardResponse struct {
	Factions []faction.Faction `json:"factions"`
}

// ResetResponse reports a manual weekly reset.
type ResetResponse struct {
	Reset int `json:"reset"`
}

// TrustedListRequest names the workspace room whose trusted groups are
// listed. A room alias is resolved by the daemon.
type TrustedListRequest struct {
	Workspace string `json:"workspace"`
}

// TrustedListResponse lists a workspace's trusted groups.
type TrustedListResponse struct {
	Groups []faction.TrustedGroup `json:"groups"`
}

// TrustedGroupRequest adds or removes Group (room ID or alias) in
// Workspace.
type TrustedGroupRequest struct {
	Workspace string `json:"workspace"`
	Group     string `json:"group"`
}

// TrustedAddResponse echoes the stored trusted group.
type TrustedAddResponse struct {
	Group faction.TrustedGroup `json:"group"`
}

// FactionRequest names a faction for repair and audit.
type FactionRequest struct {
	Name string `json:"name"`
}

// RepairResponse names the rooms in place after a repair.
type RepairResponse struct {
	Role    ref.RoomID `json:"role"`
	Space   ref.RoomID `json:"space"`
	Channel ref.RoomID `json:"channel"`
}

// AuditResponse wraps the membership audit.
type AuditResponse struct {
	Report faction.AuditReport `json:"report"`
}
