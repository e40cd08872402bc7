// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"testing"

	"github.com/factionkeep/factionkeep/lib/matrixtest"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/testutil"
	"github.com/factionkeep/factionkeep/messaging"
)

func TestMatrixDirectory(t *testing.T) {
	homeserver := matrixtest.New(t, "example.org")
	homeserver.AddUser("@factionkeep:example.org", "bot-token")
	workspace := homeserver.CreateRoom("@factionkeep:example.org", matrixtest.StateEvent{
		Type: "m.room.power_levels",
		Content: map[string]any{
			"users":         map[string]int{"@admin:example.org": 100, "@mod:example.org": 50},
			"users_default": 10,
		},
	})
	group := homeserver.CreateRoom("@factionkeep:example.org")
	homeserver.SetMembership(group, "@mod:example.org", "join")
	homeserver.SetMembership(group, "@player:example.org", "invite")
	bare := homeserver.CreateRoom("@factionkeep:example.org")

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: homeserver.URL(), Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatal(err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@factionkeep:example.org"), "bot-token")
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	directory := MatrixDirectory{Session: session}
	ctx := context.Background()

	for user, want := range map[ref.UserID]int{admin: 100, mod: 50, player: 10} {
		level, err := directory.PowerLevel(ctx, ref.MustParseRoomID(workspace), user)
		if err != nil {
			t.Fatalf("PowerLevel(%s): %v", user, err)
		}
		if level != want {
			t.Errorf("PowerLevel(%s) = %d, want %d", user, level, want)
		}
	}

	// CreateRoom in the fake seeds no power levels.
	level, err := directory.PowerLevel(ctx, ref.MustParseRoomID(bare), admin)
	if err != nil || level != 0 {
		t.Errorf("PowerLevel in a room without power levels = %d, %v", level, err)
	}

	for user, want := range map[ref.UserID]bool{mod: true, player: false, admin: false} {
		member, err := directory.IsMember(ctx, ref.MustParseRoomID(group), user)
		if err != nil {
			t.Fatalf("IsMember(%s): %v", user, err)
		}
		if member != want {
			t.Errorf("IsMember(%s) = %v, want %v", user, member, want)
		}
	}

	homeserver.Fail("GET", "/state/m.room.power_levels/", 500, "M_UNKNOWN", 1)
	if _, err := directory.PowerLevel(ctx, ref.MustParseRoomID(workspace), admin); err == nil {
		t.Error("PowerLevel succeeded despite a server error")
	}
}
