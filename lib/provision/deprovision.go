// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"encoding/json"

	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// Deprovision tears down a faction's rooms: channels under the space
// first, then the space, then the role room. Each room is closed to new
// joins, emptied, stripped of its alias, and left. Rooms already gone
// are skipped, so a failed call can be repeated.
func (p *Provisioner) Deprovision(ctx context.Context, name string) error {
	role, roleFound, err := p.owned(ctx, name, schema.ResourceRole)
	if err != nil {
		return err
	}
	space, spaceFound, err := p.owned(ctx, name, schema.ResourceSpace)
	if err != nil {
		return err
	}
	channel, channelFound, err := p.owned(ctx, name, schema.ResourceChannel)
	if err != nil {
		return err
	}

	var channels []ref.RoomID
	if spaceFound {
		children, err := p.ownedChildren(ctx, space, name)
		if err != nil {
			return err
		}
		channels = children
	}
	if channelFound && !containsRoom(channels, channel) {
		channels = append(channels, channel)
	}

	channelAlias, err := p.alias(name, schema.ResourceChannel)
	if err != nil {
		return err
	}
	for _, roomID := range channels {
		var alias ref.RoomAlias
		if channelFound && roomID == channel {
			alias = channelAlias
		}
		if err := p.teardown(ctx, roomID, alias); err != nil {
			return err
		}
	}

	if spaceFound {
		if !p.parentSpace.IsZero() {
			// Empty content removes the child link.
			if _, err := p.session.SendStateEvent(ctx, p.parentSpace, schema.MatrixEventTypeSpaceChild, space.String(),
				struct{}{}); err != nil {
				return unavailable("unlinking space from parent space", err)
			}
		}
		alias, err := p.alias(name, schema.ResourceSpace)
		if err != nil {
			return err
		}
		if err := p.teardown(ctx, space, alias); err != nil {
			return err
		}
	}

	if roleFound {
		alias, err := p.alias(name, schema.ResourceRole)
		if err != nil {
			return err
		}
		if err := p.teardown(ctx, role, alias); err != nil {
			return err
		}
	}

	p.logger.Info("deprovisioned faction rooms", "faction", name, "channels", len(channels))
	return nil
}

// ownedChildren lists the space's m.space.child rooms that carry this
// faction's channel marker. Children linked by hand are left alone.
func (p *Provisioner) ownedChildren(ctx context.Context, space ref.RoomID, name string) ([]ref.RoomID, error) {
	events, err := p.session.GetRoomState(ctx, space)
	if err != nil {
		return nil, unavailable("reading space state", err)
	}
	var children []ref.RoomID
	for _, event := range events {
		if event.Type != schema.MatrixEventTypeSpaceChild || event.StateKey == nil {
			continue
		}
		var content schema.SpaceChildContent
		if err := json.Unmarshal(event.Content, &content); err != nil || len(content.Via) == 0 {
			continue
		}
		child, err := ref.ParseRoomID(*event.StateKey)
		if err != nil {
			continue
		}
		marker, ok, err := p.readMarker(ctx, child)
		if err != nil {
			return nil, err
		}
		if ok && marker.Name == name && marker.Kind == schema.ResourceChannel {
			children = append(children, child)
		}
	}
	return children, nil
}

// teardown closes one room. alias may be zero.
func (p *Provisioner) teardown(ctx context.Context, roomID ref.RoomID, alias ref.RoomAlias) error {
	if _, err := p.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypeJoinRules, "",
		schema.JoinRulesContent{JoinRule: schema.JoinRuleInvite}); err != nil {
		return unavailable("closing "+roomID.String(), err)
	}

	members, err := p.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		return unavailable("listing members of "+roomID.String(), err)
	}
	for _, member := range members {
		if member.UserID == p.bot || !schema.HoldsMembership(member.Membership) {
			continue
		}
		if err := p.session.KickUser(ctx, roomID, member.UserID, "faction deleted"); err != nil {
			return unavailable("removing "+member.UserID.String()+" from "+roomID.String(), err)
		}
	}

	if !alias.IsZero() {
		if err := p.session.DeleteRoomAlias(ctx, alias); err != nil && !messaging.IsNotFound(err) {
			return unavailable("deleting alias "+alias.String(), err)
		}
	}
	if err := p.session.LeaveRoom(ctx, roomID); err != nil {
		return unavailable("leaving "+roomID.String(), err)
	}
	p.logger.Info("closed faction room", "room_id", roomID, "alias", alias)
	return nil
}

func containsRoom(rooms []ref.RoomID, roomID ref.RoomID) bool {
	for _, candidate := range rooms {
		if candidate == roomID {
			return true
		}
	}
	return false
}
