// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"

	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// Rename moves a faction's rooms from oldName to newName: display
// names, markers, and aliases. Room membership is untouched.
//
// Each step is checked before it is applied, so an interrupted rename
// resumes where it stopped. A resource missing under both aliases is
// skipped; Provision recreates it.
func (p *Provisioner) Rename(ctx context.Context, oldName, newName string) error {
	for _, kind := range resourceKinds {
		if err := p.renameResource(ctx, oldName, newName, kind); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) renameResource(ctx context.Context, oldName, newName string, kind schema.ResourceKind) error {
	oldAlias, err := p.alias(oldName, kind)
	if err != nil {
		return err
	}
	newAlias, err := p.alias(newName, kind)
	if err != nil {
		return err
	}

	roomID, onNewAlias, err := p.resolve(ctx, newAlias)
	if err != nil {
		return err
	}
	if !onNewAlias {
		var onOldAlias bool
		roomID, onOldAlias, err = p.resolve(ctx, oldAlias)
		if err != nil {
			return err
		}
		if !onOldAlias {
			p.logger.Warn("faction room missing during rename", "faction", newName, "kind", kind)
			return nil
		}
	}

	alias := newAlias
	if !onNewAlias {
		alias = oldAlias
	}
	if err := p.verifyMarker(ctx, roomID, alias, kind, oldName, newName); err != nil {
		return err
	}
	marker, _, err := p.readMarker(ctx, roomID)
	if err != nil {
		return err
	}

	if !onNewAlias {
		if err := p.session.SetRoomAlias(ctx, newAlias, roomID); err != nil {
			return unavailable("adding alias "+newAlias.String(), err)
		}
	}
	if kind != schema.ResourceChannel && marker.Name != newName {
		if _, err := p.session.SendStateEvent(ctx, roomID, schema.MatrixEventTypeRoomName, "",
			schema.RoomNameContent{Name: displayName(newName, kind)}); err != nil {
			return unavailable("renaming "+roomID.String(), err)
		}
	}
	if marker.Name != newName {
		if _, err := p.session.SendStateEvent(ctx, roomID, schema.EventTypeFaction, "",
			schema.FactionMarkerContent{Name: newName, Kind: kind}); err != nil {
			return unavailable("updating marker of "+roomID.String(), err)
		}
	}
	if oldAlias != newAlias {
		if err := p.dropAlias(ctx, oldAlias, roomID); err != nil {
			return err
		}
	}
	p.logger.Info("renamed faction room", "from", oldName, "to", newName, "kind", kind, "room_id", roomID)
	return nil
}

// dropAlias deletes alias if it still points at roomID.
func (p *Provisioner) dropAlias(ctx context.Context, alias ref.RoomAlias, roomID ref.RoomID) error {
	current, found, err := p.resolve(ctx, alias)
	if err != nil || !found || current != roomID {
		return err
	}
	if err := p.session.DeleteRoomAlias(ctx, alias); err != nil && !messaging.IsNotFound(err) {
		return unavailable("deleting alias "+alias.String(), err)
	}
	return nil
}
