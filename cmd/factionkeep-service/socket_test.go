// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/lib/testutil"
)

// startAdminSocket serves h's admin actions until the test ends.
func startAdminSocket(t *testing.T, h *harness) *service.Client {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "factionkeep.sock")
	server := service.NewSocketServer(socketPath, testutil.Logger(t))
	h.service.registerActions(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "admin socket did not stop")
	})
	for {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		if t.Context().Err() != nil {
			t.Fatal("admin socket did not appear")
		}
		time.Sleep(time.Millisecond)
	}
	return service.NewClient(socketPath)
}

func TestAdminStatus(t *testing.T) {
	h := newHarness(t, nil)
	client := startAdminSocket(t, h)
	if _, err := h.service.registry.Create(t.Context(), "Red Team"); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(90 * time.Second)

	var status schema.StatusResponse
	if err := client.Call(t.Context(), schema.AdminActionStatus, nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.UserID != ref.MustParseUserID(botUser) {
		t.Errorf("UserID = %s, want %s", status.UserID, botUser)
	}
	if status.Factions != 1 {
		t.Errorf("Factions = %d, want 1", status.Factions)
	}
	if status.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds = %d, want 90", status.UptimeSeconds)
	}
	// Default schedule is Monday midnight UTC; the clock starts on a
	// Wednesday.
	if want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC); !status.NextReset.Equal(want) {
		t.Errorf("NextReset = %s, want %s", status.NextReset, want)
	}
}

func TestAdminLeaderboardAndReset(t *testing.T) {
	h := newHarness(t, nil)
	client := startAdminSocket(t, h)
	for _, name := range []string{"Red Team", "Blue Team"} {
		if _, err := h.service.registry.Create(t.Context(), name); err != nil {
			t.Fatal(err)
		}
	}
	alice := ref.MustParseUserID(aliceUser)
	if _, err := h.service.membership.Join(t.Context(), alice, "Blue Team"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.service.economy.Checkin(t.Context(), alice); err != nil {
		t.Fatal(err)
	}

	var board schema.LeaderboardResponse
	if err := client.Call(t.Context(), schema.AdminActionLeaderboard, schema.LeaderboardRequest{Limit: 1}, &board); err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Factions) != 1 || board.Factions[0].Name != "Blue Team" || board.Factions[0].Points != 10 {
		t.Fatalf("leaderboard = %+v, want Blue Team with 10 points", board.Factions)
	}

	var reset schema.ResetResponse
	if err := client.Call(t.Context(), schema.AdminActionReset, nil, &reset); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Reset != 2 {
		t.Errorf("Reset = %d, want 2", reset.Reset)
	}

	board = schema.LeaderboardResponse{}
	if err := client.Call(t.Context(), schema.AdminActionLeaderboard, schema.LeaderboardRequest{}, &board); err != nil {
		t.Fatal(err)
	}
	for _, entry := range board.Factions {
		if entry.Points != 0 {
			t.Errorf("%s has %d points after reset", entry.Name, entry.Points)
		}
	}
}

func TestAdminTrustedGroups(t *testing.T) {
	h := newHarness(t, nil)
	client := startAdminSocket(t, h)
	moderators := h.homeserver.CreateRoom(adminUser)
	h.homeserver.SetAlias("#mods:example.org", moderators)

	request := schema.TrustedGroupRequest{Workspace: h.lobby.String(), Group: "#mods:example.org"}
	var added schema.TrustedAddResponse
	if err := client.Call(t.Context(), schema.AdminActionTrustedAdd, request, &added); err != nil {
		t.Fatalf("trusted-add: %v", err)
	}
	if added.Group.Group != ref.MustParseRoomID(moderators) || !added.Group.AddedBy.IsZero() {
		t.Errorf("added = %+v, want %s added by the system", added.Group, moderators)
	}

	var listed schema.TrustedListResponse
	if err := client.Call(t.Context(), schema.AdminActionTrustedList, schema.TrustedListRequest{Workspace: h.lobby.String()}, &listed); err != nil {
		t.Fatalf("trusted-list: %v", err)
	}
	if len(listed.Groups) != 1 {
		t.Fatalf("groups = %+v, want one", listed.Groups)
	}

	if err := client.Call(t.Context(), schema.AdminActionTrustedRemove, request, nil); err != nil {
		t.Fatalf("trusted-remove: %v", err)
	}
	err := client.Call(t.Context(), schema.AdminActionTrustedRemove, request, nil)
	if !errors.Is(err, faction.ErrNotFound) {
		t.Errorf("second remove = %v, want ErrNotFound", err)
	}

	err = client.Call(t.Context(), schema.AdminActionTrustedAdd, schema.TrustedGroupRequest{
		Workspace: h.lobby.String(),
		Group:     "#nobody:example.org",
	}, nil)
	if !errors.Is(err, faction.ErrNotFound) {
		t.Errorf("unknown alias = %v, want ErrNotFound", err)
	}
}

func TestAdminRepairAndAudit(t *testing.T) {
	h := newHarness(t, nil)
	client := startAdminSocket(t, h)

	err := client.Call(t.Context(), schema.AdminActionRepair, schema.FactionRequest{Name: "Nobody"}, nil)
	if !errors.Is(err, faction.ErrNotFound) {
		t.Fatalf("repair of unknown faction = %v, want ErrNotFound", err)
	}

	if _, err := h.service.registry.Create(t.Context(), "Red Team"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.service.membership.Join(t.Context(), ref.MustParseUserID(aliceUser), "Red Team"); err != nil {
		t.Fatal(err)
	}

	var repaired schema.RepairResponse
	if err := client.Call(t.Context(), schema.AdminActionRepair, schema.FactionRequest{Name: "red team"}, &repaired); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repaired.Role.IsZero() || repaired.Space.IsZero() || repaired.Channel.IsZero() {
		t.Errorf("repair = %+v, want all three rooms", repaired)
	}

	var audit schema.AuditResponse
	if err := client.Call(t.Context(), schema.AdminActionAudit, schema.FactionRequest{Name: "Red Team"}, &audit); err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !audit.Report.Consistent() {
		t.Errorf("audit = %+v, want consistent", audit.Report)
	}

	// Drift: the token is revoked behind the store's back.
	h.homeserver.SetMembership(repaired.Role.String(), aliceUser, "leave")
	audit = schema.AuditResponse{}
	if err := client.Call(t.Context(), schema.AdminActionAudit, schema.FactionRequest{Name: "Red Team"}, &audit); err != nil {
		t.Fatal(err)
	}
	if len(audit.Report.MissingToken) != 1 || audit.Report.MissingToken[0] != ref.MustParseUserID(aliceUser) {
		t.Errorf("MissingToken = %v, want [%s]", audit.Report.MissingToken, aliceUser)
	}
}
