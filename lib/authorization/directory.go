// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// StateReader is the messaging.Session method MatrixDirectory needs.
type StateReader interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
}

// MatrixDirectory answers Directory questions from room state: power
// levels from m.room.power_levels and membership from m.room.member.
// The bot must be joined to every room it is asked about.
type MatrixDirectory struct {
	Session StateReader
}

// PowerLevel reads user's level from the room's power levels. A room
// without a power levels event gives everyone zero.
func (d MatrixDirectory) PowerLevel(ctx context.Context, room ref.RoomID, user ref.UserID) (int, error) {
	raw, err := d.Session.GetStateEvent(ctx, room, schema.MatrixEventTypePowerLevels, "")
	if messaging.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var powerLevels schema.PowerLevels
	if err := json.Unmarshal(raw, &powerLevels); err != nil {
		return 0, fmt.Errorf("authorization: power levels of %s: %w", room, err)
	}
	return powerLevels.UserLevel(user), nil
}

// IsMember reports whether user has joined room. Invited users are not
// members for authorization purposes.
func (d MatrixDirectory) IsMember(ctx context.Context, room ref.RoomID, user ref.UserID) (bool, error) {
	raw, err := d.Session.GetStateEvent(ctx, room, schema.MatrixEventTypeRoomMember, user.String())
	if messaging.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var member schema.RoomMemberContent
	if err := json.Unmarshal(raw, &member); err != nil {
		return false, fmt.Errorf("authorization: membership of %s in %s: %w", user, room, err)
	}
	return member.Membership == schema.MembershipJoin, nil
}
