// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// Grant gives user the faction's access token by inviting them into
// the role room. A user who is already invited or joined is left
// alone.
func (p *Provisioner) Grant(ctx context.Context, user ref.UserID, name string) error {
	role, err := p.requireRole(ctx, name)
	if err != nil {
		return err
	}
	membership, err := p.membership(ctx, role, user)
	if err != nil {
		return err
	}
	if schema.HoldsMembership(membership) {
		return nil
	}
	if err := p.session.InviteUser(ctx, role, user); err != nil {
		return unavailable(fmt.Sprintf("inviting %s to %q", user, name), err)
	}
	return nil
}

// Revoke takes the faction's access token from user and removes them
// from the faction's space and channel. A user without the token, or
// a faction without rooms, is a no-op. Rooms the faction's aliases
// point at but that carry no marker for name are left alone.
func (p *Provisioner) Revoke(ctx context.Context, user ref.UserID, name string) error {
	for _, kind := range resourceKinds {
		roomID, found, err := p.owned(ctx, name, kind)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		membership, err := p.membership(ctx, roomID, user)
		if err != nil {
			return err
		}
		if !schema.HoldsMembership(membership) {
			continue
		}
		if err := p.session.KickUser(ctx, roomID, user, "left faction "+name); err != nil {
			return unavailable(fmt.Sprintf("removing %s from %s", user, roomID), err)
		}
	}
	return nil
}

// TokenHolders lists users invited to or joined in the faction's role
// room, excluding the bot, sorted.
func (p *Provisioner) TokenHolders(ctx context.Context, name string) ([]ref.UserID, error) {
	role, err := p.requireRole(ctx, name)
	if err != nil {
		return nil, err
	}
	members, err := p.session.GetRoomMembers(ctx, role)
	if err != nil {
		return nil, unavailable("listing role room members", err)
	}
	var holders []ref.UserID
	for _, member := range members {
		if member.UserID != p.bot && schema.HoldsMembership(member.Membership) {
			holders = append(holders, member.UserID)
		}
	}
	slices.SortFunc(holders, func(a, b ref.UserID) int {
		return strings.Compare(a.String(), b.String())
	})
	return holders, nil
}

func (p *Provisioner) requireRole(ctx context.Context, name string) (ref.RoomID, error) {
	alias, err := p.alias(name, schema.ResourceRole)
	if err != nil {
		return ref.RoomID{}, err
	}
	role, found, err := p.resolve(ctx, alias)
	if err != nil {
		return ref.RoomID{}, err
	}
	if !found {
		return ref.RoomID{}, fmt.Errorf("provision: role room %s for %q does not exist: %w",
			alias, name, faction.ErrExternalUnavailable)
	}
	return role, nil
}

// membership reads user's m.room.member in roomID; "" when absent.
func (p *Provisioner) membership(ctx context.Context, roomID ref.RoomID, user ref.UserID) (string, error) {
	raw, err := p.session.GetStateEvent(ctx, roomID, schema.MatrixEventTypeRoomMember, user.String())
	if messaging.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("reading membership of "+user.String(), err)
	}
	var content schema.RoomMemberContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", nil
	}
	return content.Membership, nil
}
