// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/factionkeep/factionkeep/lib/ref"

// AdminPowerLevel is the conventional Matrix room administrator level.
const AdminPowerLevel = 100

// PowerLevels is the typed content of m.room.power_levels. Pointer
// fields distinguish "absent" from an explicit zero.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  *int           `json:"users_default,omitempty"`
	Events        map[string]int `json:"events,omitempty"`
	EventsDefault *int           `json:"events_default,omitempty"`
	StateDefault  *int           `json:"state_default,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
}

// UserLevel returns the level of userID: its explicit entry, else
// users_default, else 0.
func (powerLevels *PowerLevels) UserLevel(userID ref.UserID) int {
	if level, ok := powerLevels.Users[userID.String()]; ok {
		return level
	}
	if powerLevels.UsersDefault != nil {
		return *powerLevels.UsersDefault
	}
	return 0
}

// FactionRoomPowerLevels is the power_level_content_override for rooms
// provisioned for a faction. Only the bot may change state, invite or
// kick; members may talk.
func FactionRoomPowerLevels(bot ref.UserID) map[string]any {
	return map[string]any{
		"users": map[string]any{
			bot.String(): AdminPowerLevel,
		},
		"users_default":  0,
		"events_default": 0,
		"state_default":  AdminPowerLevel,
		"invite":         AdminPowerLevel,
		"kick":           AdminPowerLevel,
		"ban":            AdminPowerLevel,
		"redact":         50,
		"events": map[string]any{
			string(MatrixEventTypeRoomName):    AdminPowerLevel,
			string(MatrixEventTypeJoinRules):   AdminPowerLevel,
			string(MatrixEventTypePowerLevels): AdminPowerLevel,
			string(MatrixEventTypeSpaceChild):  AdminPowerLevel,
			string(EventTypeFaction):           AdminPowerLevel,
		},
	}
}
