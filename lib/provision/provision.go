// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision keeps a faction's Matrix rooms in step with its
// record. Each faction owns three rooms, found through deterministic
// aliases on the bot's server:
//
//	#faction.<slug>        role room; membership is the access token
//	#faction.<slug>.space  space named "<NAME> FACTION"
//	#faction.<slug>.chat   the space's default "chat" channel
//
// Every room carries an org.factionkeep.faction marker. Operations are
// idempotent: an alias that resolves to a room with a matching marker
// is reused, a missing one is created, and anything else is a
// resource conflict. A failed call can therefore be repeated until it
// succeeds.
package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// Session is the subset of messaging.Session the provisioner calls.
type Session interface {
	UserID() ref.UserID
	CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error)
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error)
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	SetRoomAlias(ctx context.Context, alias ref.RoomAlias, roomID ref.RoomID) error
	DeleteRoomAlias(ctx context.Context, alias ref.RoomAlias) error
}

// Config holds the provisioner's collaborators.
type Config struct {
	Session Session

	// ParentSpace, when set, is a community space every faction space
	// is linked under.
	ParentSpace ref.RoomID

	// RoomVersion is passed to createRoom; empty uses the server default.
	RoomVersion string

	Logger *slog.Logger
}

// Provisioner creates, renames, and tears down faction rooms and moves
// users in and out of role rooms.
type Provisioner struct {
	session     Session
	bot         ref.UserID
	server      ref.ServerName
	parentSpace ref.RoomID
	roomVersion string
	logger      *slog.Logger
}

// Handle names the rooms provisioned for one faction.
type Handle struct {
	Role    ref.RoomID `json:"role"`
	Space   ref.RoomID `json:"space"`
	Channel ref.RoomID `json:"channel"`
}

// ChannelName is the display name of the default channel.
const ChannelName = "chat"

// New creates a Provisioner. Aliases are placed on the server of the
// session's user.
func New(config Config) (*Provisioner, error) {
	if config.Session == nil {
		return nil, errors.New("provision: Session is required")
	}
	bot := config.Session.UserID()
	if bot.IsZero() {
		return nil, errors.New("provision: session has no user ID")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		session:     config.Session,
		bot:         bot,
		server:      bot.Server(),
		parentSpace: config.ParentSpace,
		roomVersion: config.RoomVersion,
		logger:      logger,
	}, nil
}

// resourceKinds is the provisioning order: the space and channel
// restrict joins to the role room, so it must exist first.
var resourceKinds = []schema.ResourceKind{schema.ResourceRole, schema.ResourceSpace, schema.ResourceChannel}

// AliasLocalpart returns the alias localpart of one of a faction's
// rooms.
func AliasLocalpart(slug string, kind schema.ResourceKind) string {
	switch kind {
	case schema.ResourceSpace:
		return "faction." + slug + ".space"
	case schema.ResourceChannel:
		return "faction." + slug + ".chat"
	default:
		return "faction." + slug
	}
}

func (p *Provisioner) alias(name string, kind schema.ResourceKind) (ref.RoomAlias, error) {
	alias, err := ref.NewRoomAlias(AliasLocalpart(faction.Slug(name), kind), p.server)
	if err != nil {
		return ref.RoomAlias{}, fmt.Errorf("provision: %w", err)
	}
	return alias, nil
}

// displayName is the m.room.name of a resource.
func displayName(name string, kind schema.ResourceKind) string {
	switch kind {
	case schema.ResourceSpace:
		return faction.ChannelGroupName(name)
	case schema.ResourceChannel:
		return ChannelName
	default:
		return name
	}
}

// Provision makes sure the faction's three rooms exist, are marked,
// and are linked into the space hierarchy.
func (p *Provisioner) Provision(ctx context.Context, name string) (Handle, error) {
	var handle Handle
	for _, kind := range resourceKinds {
		roomID, err := p.ensure(ctx, name, kind, handle)
		if err != nil {
			return handle, err
		}
		switch kind {
		case schema.ResourceRole:
			handle.Role = roomID
		case schema.ResourceSpace:
			handle.Space = roomID
		case schema.ResourceChannel:
			handle.Channel = roomID
		}
	}

	via := []string{p.server.String()}
	if _, err := p.session.SendStateEvent(ctx, handle.Space, schema.MatrixEventTypeSpaceChild, handle.Channel.String(),
		schema.SpaceChildContent{Via: via, Suggested: true}); err != nil {
		return handle, unavailable("linking channel into space", err)
	}
	if !p.parentSpace.IsZero() {
		if _, err := p.session.SendStateEvent(ctx, p.parentSpace, schema.MatrixEventTypeSpaceChild, handle.Space.String(),
			schema.SpaceChildContent{Via: via}); err != nil {
			return handle, unavailable("linking space into parent space", err)
		}
		if _, err := p.session.SendStateEvent(ctx, handle.Space, schema.MatrixEventTypeSpaceParent, p.parentSpace.String(),
			schema.SpaceParentContent{Via: via}); err != nil {
			return handle, unavailable("linking parent space into space", err)
		}
	}
	return handle, nil
}

// ensure returns the room behind the resource's alias, creating it
// when the alias is free.
func (p *Provisioner) ensure(ctx context.Context, name string, kind schema.ResourceKind, handle Handle) (ref.RoomID, error) {
	alias, err := p.alias(name, kind)
	if err != nil {
		return ref.RoomID{}, err
	}

	// A concurrent creator can take the alias between our resolve and
	// createRoom; the second attempt finds its room.
	for attempt := 0; attempt < 2; attempt++ {
		roomID, found, err := p.resolve(ctx, alias)
		if err != nil {
			return ref.RoomID{}, err
		}
		if found {
			if err := p.verifyMarker(ctx, roomID, alias, kind, name); err != nil {
				return ref.RoomID{}, err
			}
			return roomID, nil
		}

		response, err := p.session.CreateRoom(ctx, p.createRequest(name, kind, alias, handle))
		if messaging.IsMatrixError(err, messaging.ErrCodeRoomInUse) {
			continue
		}
		if err != nil {
			return ref.RoomID{}, unavailable(fmt.Sprintf("creating %s room for %q", kind, name), err)
		}
		p.logger.Info("created faction room",
			"faction", name,
			"kind", kind,
			"room_id", response.RoomID,
			"alias", alias,
		)
		return response.RoomID, nil
	}
	return ref.RoomID{}, fmt.Errorf("provision: alias %s: %w", alias, faction.ErrResourceConflict)
}

func (p *Provisioner) createRequest(name string, kind schema.ResourceKind, alias ref.RoomAlias, handle Handle) messaging.CreateRoomRequest {
	request := messaging.CreateRoomRequest{
		Name:                      displayName(name, kind),
		Alias:                     alias.Localpart(),
		RoomVersion:               p.roomVersion,
		Visibility:                "private",
		Preset:                    "private_chat",
		PowerLevelContentOverride: schema.FactionRoomPowerLevels(p.bot),
		InitialState: []messaging.StateEvent{{
			Type:    schema.EventTypeFaction,
			Content: schema.FactionMarkerContent{Name: name, Kind: kind},
		}},
	}
	switch kind {
	case schema.ResourceRole:
		request.Topic = fmt.Sprintf("Members of the %s faction.", name)
	case schema.ResourceSpace:
		request.CreationContent = map[string]any{"type": "m.space"}
		request.InitialState = append(request.InitialState, messaging.StateEvent{
			Type:    schema.MatrixEventTypeJoinRules,
			Content: schema.RestrictedTo(handle.Role),
		})
	case schema.ResourceChannel:
		request.InitialState = append(request.InitialState,
			messaging.StateEvent{
				Type:    schema.MatrixEventTypeJoinRules,
				Content: schema.RestrictedTo(handle.Role),
			},
			messaging.StateEvent{
				Type:     schema.MatrixEventTypeSpaceParent,
				StateKey: handle.Space.String(),
				Content:  schema.SpaceParentContent{Via: []string{p.server.String()}, Canonical: true},
			},
		)
	}
	return request
}

// resolve looks up alias. A missing alias is not an error.
func (p *Provisioner) resolve(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, bool, error) {
	roomID, err := p.session.ResolveAlias(ctx, alias)
	if messaging.IsNotFound(err) {
		return ref.RoomID{}, false, nil
	}
	if err != nil {
		return ref.RoomID{}, false, unavailable("resolving "+alias.String(), err)
	}
	return roomID, true, nil
}

// readMarker returns the room's faction marker. A room the bot cannot
// read or that has no marker yields ok=false.
func (p *Provisioner) readMarker(ctx context.Context, roomID ref.RoomID) (schema.FactionMarkerContent, bool, error) {
	raw, err := p.session.GetStateEvent(ctx, roomID, schema.EventTypeFaction, "")
	if messaging.IsNotFound(err) || messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
		return schema.FactionMarkerContent{}, false, nil
	}
	if err != nil {
		return schema.FactionMarkerContent{}, false, unavailable("reading marker of "+roomID.String(), err)
	}
	var marker schema.FactionMarkerContent
	if err := json.Unmarshal(raw, &marker); err != nil {
		return schema.FactionMarkerContent{}, false, nil
	}
	return marker, true, nil
}

func (p *Provisioner) verifyMarker(ctx context.Context, roomID ref.RoomID, alias ref.RoomAlias, kind schema.ResourceKind, names ...string) error {
	marker, ok, err := p.readMarker(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok || marker.Kind != kind || !slices.Contains(names, marker.Name) {
		return fmt.Errorf("provision: %s resolves to %s which is not the %s room of %q: %w",
			alias, roomID, kind, names[0], faction.ErrResourceConflict)
	}
	return nil
}

// lookup resolves the alias of one resource and confirms the marker.
// A missing alias returns found=false.
func (p *Provisioner) lookup(ctx context.Context, name string, kind schema.ResourceKind) (ref.RoomID, bool, error) {
	alias, err := p.alias(name, kind)
	if err != nil {
		return ref.RoomID{}, false, err
	}
	roomID, found, err := p.resolve(ctx, alias)
	if err != nil || !found {
		return ref.RoomID{}, false, err
	}
	if err := p.verifyMarker(ctx, roomID, alias, kind, name); err != nil {
		return ref.RoomID{}, false, err
	}
	return roomID, true, nil
}

// owned is lookup for callers that act only on the faction's own
// rooms. An alias pointing at a room without the faction's marker
// counts as missing.
func (p *Provisioner) owned(ctx context.Context, name string, kind schema.ResourceKind) (ref.RoomID, bool, error) {
	roomID, found, err := p.lookup(ctx, name, kind)
	if errors.Is(err, faction.ErrResourceConflict) {
		p.logger.Warn("faction alias points at a foreign room", "faction", name, "kind", kind, "error", err)
		return ref.RoomID{}, false, nil
	}
	return roomID, found, err
}

// unavailable wraps a platform failure as faction.ErrExternalUnavailable.
// Errors already classified pass through.
func unavailable(action string, err error) error {
	if errors.Is(err, faction.ErrResourceConflict) || errors.Is(err, faction.ErrExternalUnavailable) {
		return err
	}
	return fmt.Errorf("provision: %s: %w: %w", action, faction.ErrExternalUnavailable, err)
}
