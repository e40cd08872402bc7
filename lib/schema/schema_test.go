// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"

	"github.com/factionkeep/factionkeep/lib/ref"
)

func TestUserLevel(t *testing.T) {
	raw := `{"users":{"@admin:example.org":100,"@mod:example.org":50},"users_default":10}`
	var powerLevels PowerLevels
	if err := json.Unmarshal([]byte(raw), &powerLevels); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	tests := map[string]int{
		"@admin:example.org": 100,
		"@mod:example.org":   50,
		"@alice:example.org": 10,
	}
	for user, want := range tests {
		if got := powerLevels.UserLevel(ref.MustParseUserID(user)); got != want {
			t.Errorf("UserLevel(%s) = %d, want %d", user, got, want)
		}
	}

	var empty PowerLevels
	if got := empty.UserLevel(ref.MustParseUserID("@alice:example.org")); got != 0 {
		t.Errorf("UserLevel with no users_default = %d, want 0", got)
	}
}

func TestRestrictedToWireFormat(t *testing.T) {
	content := RestrictedTo(ref.MustParseRoomID("!role:example.org"))
	data, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"join_rule":"restricted","allow":[{"type":"m.room_membership","room_id":"!role:example.org"}]}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}
}

func TestHoldsMembership(t *testing.T) {
	for membership, want := range map[string]bool{
		MembershipJoin:   true,
		MembershipInvite: true,
		MembershipLeave:  false,
		MembershipBan:    false,
		MembershipKnock:  false,
		"":               false,
	} {
		if got := HoldsMembership(membership); got != want {
			t.Errorf("HoldsMembership(%q) = %v, want %v", membership, got, want)
		}
	}
}

func TestFactionRoomPowerLevelsGivesBotAdmin(t *testing.T) {
	bot := ref.MustParseUserID("@factionkeep:example.org")
	data, err := json.Marshal(FactionRoomPowerLevels(bot))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var powerLevels PowerLevels
	if err := json.Unmarshal(data, &powerLevels); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := powerLevels.UserLevel(bot); got != AdminPowerLevel {
		t.Errorf("bot level = %d, want %d", got, AdminPowerLevel)
	}
	if got := powerLevels.UserLevel(ref.MustParseUserID("@alice:example.org")); got != 0 {
		t.Errorf("member level = %d, want 0", got)
	}
}
