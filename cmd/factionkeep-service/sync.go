// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/messaging"
)

// syncFilter restricts /sync to room messages and membership. The
// bot reads faction room state on demand, so no state is synced
// beyond membership.
var syncFilter = buildSyncFilter()

func buildSyncFilter() string {
	emptyTypes := []string{}
	filter := map[string]any{
		"room": map[string]any{
			"state": map[string]any{
				"types": []ref.EventType{schema.MatrixEventTypeRoomMember},
			},
			"timeline": map[string]any{
				"types": []ref.EventType{schema.MatrixEventTypeMessage},
				"limit": 50,
			},
			"ephemeral": map[string]any{
				"types": emptyTypes,
			},
			"account_data": map[string]any{
				"types": emptyTypes,
			},
		},
		"presence": map[string]any{
			"types": emptyTypes,
		},
		"account_data": map[string]any{
			"types": emptyTypes,
		},
	}

	data, err := json.Marshal(filter)
	if err != nil {
		panic("building sync filter: " + err.Error())
	}
	return string(data)
}

// initialSync accepts pending invites and returns the since token.
// Commands in the initial timeline were sent before the daemon started
// and are not executed.
func (s *FactionService) initialSync(ctx context.Context) (string, error) {
	sinceToken, response, err := service.InitialSync(ctx, s.session, syncFilter)
	if err != nil {
		return "", err
	}
	accepted := service.AcceptInvites(ctx, s.session, response.Rooms.Invite, s.logger)

	skipped := 0
	for _, room := range response.Rooms.Join {
		skipped += len(room.Timeline.Events)
	}
	s.logger.Info("initial sync complete",
		"joined_rooms", len(response.Rooms.Join),
		"invites_accepted", len(accepted),
		"backlog_skipped", skipped,
	)
	return sinceToken, nil
}

// handleSync accepts new invites and dispatches every timeline event in
// a command room. Each event runs in its own goroutine once a slot is
// free, so a slow command does not hold up the sync loop beyond the
// concurrency limit.
func (s *FactionService) handleSync(ctx context.Context, response *messaging.SyncResponse) {
	if len(response.Rooms.Invite) > 0 {
		service.AcceptInvites(ctx, s.session, response.Rooms.Invite, s.logger)
	}

	for roomID, room := range response.Rooms.Join {
		if len(s.commandRooms) > 0 && !s.commandRooms[roomID] {
			continue
		}
		for _, event := range room.Timeline.Events {
			if event.Type != schema.MatrixEventTypeMessage || event.StateKey != nil {
				continue
			}
			select {
			case s.slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				defer func() { <-s.slots }()
				s.dispatch(ctx, roomID, event)
			}()
		}
	}
}

// dispatch runs one event through the command dispatcher, converting
// a panic into a logged error so one bad command cannot take the
// daemon down.
func (s *FactionService) dispatch(ctx context.Context, roomID ref.RoomID, event messaging.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("command handler panicked",
				"room", roomID,
				"event_id", event.EventID,
				"panic", fmt.Sprint(recovered),
			)
		}
	}()
	if err := s.dispatcher.Handle(ctx, roomID, event); err != nil {
		s.logger.Error("dispatching event failed", "room", roomID, "event_id", event.EventID, "error", err)
	}
}
