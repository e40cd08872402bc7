// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/factionkeep/factionkeep/lib/ref"

// Standard Matrix event types.
const (
	MatrixEventTypeRoomName    ref.EventType = "m.room.name"
	MatrixEventTypeTopic       ref.EventType = "m.room.topic"
	MatrixEventTypeJoinRules   ref.EventType = "m.room.join_rules"
	MatrixEventTypePowerLevels ref.EventType = "m.room.power_levels"
	MatrixEventTypeRoomMember  ref.EventType = "m.room.member"
	MatrixEventTypeSpaceChild  ref.EventType = "m.space.child"
	MatrixEventTypeSpaceParent ref.EventType = "m.space.parent"
	MatrixEventTypeMessage     ref.EventType = "m.room.message"
)

// EventTypeFaction is the state event (state key "") placed in every
// room provisioned for a faction. Its presence and name distinguish a
// room factionkeep owns from an unrelated room that happens to sit
// behind the same alias.
const EventTypeFaction ref.EventType = "org.factionkeep.faction"

// ResourceKind names which of a faction's rooms a marker tags.
type ResourceKind string

const (
	// ResourceRole is the private room whose membership is the
	// faction's access token.
	ResourceRole ResourceKind = "role"

	// ResourceSpace is the faction's channel group.
	ResourceSpace ResourceKind = "space"

	// ResourceChannel is a channel nested under the space.
	ResourceChannel ResourceKind = "channel"
)

// FactionMarkerContent is the content of an org.factionkeep.faction
// event.
type FactionMarkerContent struct {
	Name string       `json:"name"`
	Kind ResourceKind `json:"kind"`
}

// RoomNameContent is the content of m.room.name.
type RoomNameContent struct {
	Name string `json:"name"`
}

// Join rule values for m.room.join_rules.
const (
	JoinRuleInvite     = "invite"
	JoinRuleRestricted = "restricted"
)

// JoinRulesContent is the content of m.room.join_rules.
type JoinRulesContent struct {
	JoinRule string          `json:"join_rule"`
	Allow    []JoinRuleAllow `json:"allow,omitempty"`
}

// JoinRuleAllow is one entry of a restricted join rule. Type is
// "m.room_membership" and RoomID is the room whose members may join.
type JoinRuleAllow struct {
	Type   string     `json:"type"`
	RoomID ref.RoomID `json:"room_id"`
}

// RestrictedTo returns a join rule admitting members of roomID.
func RestrictedTo(roomID ref.RoomID) JoinRulesContent {
	return JoinRulesContent{
		JoinRule: JoinRuleRestricted,
		Allow:    []JoinRuleAllow{{Type: "m.room_membership", RoomID: roomID}},
	}
}

// SpaceChildContent is the content of m.space.child. An event with
// empty content (no Via) removes the child.
type SpaceChildContent struct {
	Via       []string `json:"via,omitempty"`
	Suggested bool     `json:"suggested,omitempty"`
}

// SpaceParentContent is the content of m.space.parent.
type SpaceParentContent struct {
	Via       []string `json:"via,omitempty"`
	Canonical bool     `json:"canonical,omitempty"`
}

// Membership values of m.room.member.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
	MembershipKnock  = "knock"
)

// RoomMemberContent is the content of m.room.member.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// HoldsMembership reports whether a membership value counts as being
// in the room for access purposes: joined, or invited and not yet
// joined.
func HoldsMembership(membership string) bool {
	return membership == MembershipJoin || membership == MembershipInvite
}
