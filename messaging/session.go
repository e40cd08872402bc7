// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"

	"github.com/factionkeep/factionkeep/lib/ref"
)

// Session is the Matrix API surface factionkeep uses. *DirectSession
// is the production implementation; consumers declare the narrower
// subsets they need so tests can substitute fakes.
type Session interface {
	UserID() ref.UserID
	Close() error
	WhoAmI(ctx context.Context) (ref.UserID, error)

	CreateRoom(ctx context.Context, request CreateRoomRequest) (*CreateRoomResponse, error)
	JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error)
	LeaveRoom(ctx context.Context, roomID ref.RoomID) error
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error

	SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error)
	SendEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]Event, error)
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]RoomMember, error)

	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
	SetRoomAlias(ctx context.Context, alias ref.RoomAlias, roomID ref.RoomID) error
	DeleteRoomAlias(ctx context.Context, alias ref.RoomAlias) error

	JoinedRooms(ctx context.Context) ([]ref.RoomID, error)
	Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error)
}

var _ Session = (*DirectSession)(nil)
