// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/factionkeep/factionkeep/lib/authorization"
	"github.com/factionkeep/factionkeep/lib/codec"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/lib/version"
	"github.com/factionkeep/factionkeep/messaging"
)

// registerActions registers the admin socket actions. The socket is
// owner-only, so every action runs as the system actor.
func (s *FactionService) registerActions(server *service.SocketServer) {
	server.Handle(schema.AdminActionStatus, s.handleStatus)
	server.Handle(schema.AdminActionLeaderboard, s.handleLeaderboard)
	server.Handle(schema.AdminActionReset, s.handleReset)
	server.Handle(schema.AdminActionTrustedList, s.handleTrustedList)
	server.Handle(schema.AdminActionTrustedAdd, s.handleTrustedAdd)
	server.Handle(schema.AdminActionTrustedRemove, s.handleTrustedRemove)
	server.Handle(schema.AdminActionRepair, s.handleRepair)
	server.Handle(schema.AdminActionAudit, s.handleAudit)
}

func (s *FactionService) handleStatus(ctx context.Context, _ []byte) (any, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	response := schema.StatusResponse{
		Version:        version.Info(),
		UserID:         s.session.UserID(),
		UptimeSeconds:  int64(now.Sub(s.startedAt).Seconds()),
		SchemaVersion:  stats.SchemaVersion,
		Factions:       stats.Factions,
		Members:        stats.Members,
		ActiveConflict: stats.ActiveConflict,
		PendingRenames: stats.PendingRenames,
	}
	if next, err := s.schedule.Next(now); err == nil {
		response.NextReset = next
	}
	return response, nil
}

func (s *FactionService) handleLeaderboard(ctx context.Context, raw []byte) (any, error) {
	var request schema.LeaderboardRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if request.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	factions, err := s.economy.Leaderboard(ctx, request.Limit)
	if err != nil {
		return nil, err
	}
	return schema.LeaderboardResponse{Factions: factions}, nil
}

func (s *FactionService) handleReset(ctx context.Context, _ []byte) (any, error) {
	count, err := s.economy.WeeklyReset(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("points reset from admin socket", "factions", count)
	return schema.ResetResponse{Reset: count}, nil
}

func (s *FactionService) handleTrustedList(ctx context.Context, raw []byte) (any, error) {
	var request schema.TrustedListRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	workspace, err := s.resolveRoom(ctx, "workspace", request.Workspace)
	if err != nil {
		return nil, err
	}
	groups, err := s.gate.TrustedGroups(ctx, workspace)
	if err != nil {
		return nil, err
	}
	return schema.TrustedListResponse{Groups: groups}, nil
}

func (s *FactionService) handleTrustedAdd(ctx context.Context, raw []byte) (any, error) {
	workspace, group, err := s.trustedGroupRequest(ctx, raw)
	if err != nil {
		return nil, err
	}
	added, err := s.gate.AddTrustedGroup(ctx, authorization.SystemActor(workspace), group)
	if err != nil {
		return nil, err
	}
	return schema.TrustedAddResponse{Group: added}, nil
}

func (s *FactionService) handleTrustedRemove(ctx context.Context, raw []byte) (any, error) {
	workspace, group, err := s.trustedGroupRequest(ctx, raw)
	if err != nil {
		return nil, err
	}
	return nil, s.gate.RemoveTrustedGroup(ctx, authorization.SystemActor(workspace), group)
}

func (s *FactionService) trustedGroupRequest(ctx context.Context, raw []byte) (workspace, group ref.RoomID, err error) {
	var request schema.TrustedGroupRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return ref.RoomID{}, ref.RoomID{}, fmt.Errorf("invalid request: %w", err)
	}
	if workspace, err = s.resolveRoom(ctx, "workspace", request.Workspace); err != nil {
		return ref.RoomID{}, ref.RoomID{}, err
	}
	if group, err = s.resolveRoom(ctx, "group", request.Group); err != nil {
		return ref.RoomID{}, ref.RoomID{}, err
	}
	return workspace, group, nil
}

func (s *FactionService) handleRepair(ctx context.Context, raw []byte) (any, error) {
	var request schema.FactionRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	handle, err := s.registry.Repair(ctx, request.Name)
	if err != nil {
		return nil, err
	}
	return schema.RepairResponse{Role: handle.Role, Space: handle.Space, Channel: handle.Channel}, nil
}

func (s *FactionService) handleAudit(ctx context.Context, raw []byte) (any, error) {
	var request schema.FactionRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	report, err := s.membership.Audit(ctx, request.Name)
	if err != nil {
		return nil, err
	}
	return schema.AuditResponse{Report: report}, nil
}

// resolveRoom accepts a room ID or an alias. An alias nobody holds is
// reported as not found.
func (s *FactionService) resolveRoom(ctx context.Context, field, raw string) (ref.RoomID, error) {
	if raw == "" {
		return ref.RoomID{}, fmt.Errorf("%s is required", field)
	}
	if !strings.HasPrefix(raw, "#") {
		roomID, err := ref.ParseRoomID(raw)
		if err != nil {
			return ref.RoomID{}, fmt.Errorf("%s: %w", field, err)
		}
		return roomID, nil
	}
	alias, err := ref.ParseRoomAlias(raw)
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("%s: %w", field, err)
	}
	roomID, err := s.session.ResolveAlias(ctx, alias)
	if messaging.IsNotFound(err) {
		return ref.RoomID{}, fmt.Errorf("%s %s: %w", field, alias, faction.ErrNotFound)
	}
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("resolving %s: %w: %w", alias, faction.ErrExternalUnavailable, err)
	}
	return roomID, nil
}
