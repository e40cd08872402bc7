// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/matrixtest"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/testutil"
	"github.com/factionkeep/factionkeep/messaging"
)

const botID = "@factionkeep:example.org"

var (
	alice = ref.MustParseUserID("@alice:example.org")
	bob   = ref.MustParseUserID("@bob:example.org")
	carol = ref.MustParseUserID("@carol:example.org")
)

func newProvisioner(t *testing.T) (*Provisioner, *matrixtest.Homeserver) {
	t.Helper()
	homeserver := matrixtest.New(t, "example.org")
	return newProvisionerOn(t, homeserver, ref.RoomID{}), homeserver
}

func newProvisionerOn(t *testing.T, homeserver *matrixtest.Homeserver, parentSpace ref.RoomID) *Provisioner {
	t.Helper()
	homeserver.AddUser(botID, "bot-token")

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserver.URL(),
		Logger:        testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID(botID), "bot-token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	provisioner, err := New(Config{Session: session, ParentSpace: parentSpace, Logger: testutil.Logger(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return provisioner
}

func mustState(t *testing.T, homeserver *matrixtest.Homeserver, roomID ref.RoomID, eventType ref.EventType, stateKey string, into any) {
	t.Helper()
	raw, ok := homeserver.State(roomID.String(), string(eventType), stateKey)
	if !ok {
		t.Fatalf("room %s has no %s/%q state", roomID, eventType, stateKey)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("decoding %s: %v", eventType, err)
	}
}

func aliasTarget(t *testing.T, homeserver *matrixtest.Homeserver, alias string) (ref.RoomID, bool) {
	t.Helper()
	roomID, ok := homeserver.Alias(alias)
	if !ok {
		return ref.RoomID{}, false
	}
	return ref.MustParseRoomID(roomID), true
}

func TestProvisionCreatesMarkedRooms(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if handle.Role.IsZero() || handle.Space.IsZero() || handle.Channel.IsZero() {
		t.Fatalf("incomplete handle: %+v", handle)
	}
	if handle.Role == handle.Space || handle.Space == handle.Channel {
		t.Fatalf("rooms not distinct: %+v", handle)
	}

	for alias, want := range map[string]ref.RoomID{
		"#faction.red-team:example.org":       handle.Role,
		"#faction.red-team.space:example.org": handle.Space,
		"#faction.red-team.chat:example.org":  handle.Channel,
	} {
		got, ok := aliasTarget(t, homeserver, alias)
		if !ok || got != want {
			t.Errorf("alias %s = %v (found %v), want %s", alias, got, ok, want)
		}
	}

	for roomID, kind := range map[ref.RoomID]schema.ResourceKind{
		handle.Role:    schema.ResourceRole,
		handle.Space:   schema.ResourceSpace,
		handle.Channel: schema.ResourceChannel,
	} {
		var marker schema.FactionMarkerContent
		mustState(t, homeserver, roomID, schema.EventTypeFaction, "", &marker)
		if marker.Name != "Red Team" || marker.Kind != kind {
			t.Errorf("marker of %s = %+v, want Red Team/%s", roomID, marker, kind)
		}
	}

	var spaceName, channelName schema.RoomNameContent
	mustState(t, homeserver, handle.Space, schema.MatrixEventTypeRoomName, "", &spaceName)
	mustState(t, homeserver, handle.Channel, schema.MatrixEventTypeRoomName, "", &channelName)
	if spaceName.Name != "RED TEAM FACTION" {
		t.Errorf("space name = %q", spaceName.Name)
	}
	if channelName.Name != "chat" {
		t.Errorf("channel name = %q", channelName.Name)
	}

	var create struct {
		Type string `json:"type"`
	}
	mustState(t, homeserver, handle.Space, "m.room.create", "", &create)
	if create.Type != "m.space" {
		t.Errorf("space creation type = %q, want m.space", create.Type)
	}

	for _, roomID := range []ref.RoomID{handle.Space, handle.Channel} {
		var rules schema.JoinRulesContent
		mustState(t, homeserver, roomID, schema.MatrixEventTypeJoinRules, "", &rules)
		if rules.JoinRule != schema.JoinRuleRestricted || len(rules.Allow) != 1 || rules.Allow[0].RoomID != handle.Role {
			t.Errorf("join rules of %s = %+v, want restricted to %s", roomID, rules, handle.Role)
		}
	}

	var child schema.SpaceChildContent
	mustState(t, homeserver, handle.Space, schema.MatrixEventTypeSpaceChild, handle.Channel.String(), &child)
	if !slices.Equal(child.Via, []string{"example.org"}) {
		t.Errorf("space child via = %v", child.Via)
	}
	var parent schema.SpaceParentContent
	mustState(t, homeserver, handle.Channel, schema.MatrixEventTypeSpaceParent, handle.Space.String(), &parent)
	if !parent.Canonical {
		t.Error("channel's space parent is not canonical")
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	first, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	second, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("second Provision: %v", err)
	}
	if first != second {
		t.Errorf("second Provision = %+v, want %+v", second, first)
	}
	if count := homeserver.RoomCount(); count != 3 {
		t.Errorf("RoomCount = %d, want 3", count)
	}
}

func TestProvisionForeignAliasIsResourceConflict(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)

	foreign := homeserver.CreateRoom("@mallory:example.org")
	homeserver.SetAlias("#faction.red-team:example.org", foreign)

	_, err := provisioner.Provision(context.Background(), "Red Team")
	if !errors.Is(err, faction.ErrResourceConflict) {
		t.Fatalf("Provision error = %v, want ErrResourceConflict", err)
	}
}

func TestProvisionMarkerForOtherFactionIsResourceConflict(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)

	other := homeserver.CreateRoom(botID, matrixtest.StateEvent{
		Type:    string(schema.EventTypeFaction),
		Content: schema.FactionMarkerContent{Name: "red-team", Kind: schema.ResourceRole},
	})
	homeserver.SetAlias("#faction.red-team:example.org", other)

	_, err := provisioner.Provision(context.Background(), "Red Team")
	if !errors.Is(err, faction.ErrResourceConflict) {
		t.Fatalf("Provision error = %v, want ErrResourceConflict", err)
	}
}

func TestProvisionPlatformFailureIsRetryable(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	homeserver.Fail("POST", "createRoom", 502, "M_UNKNOWN", 1)
	_, err := provisioner.Provision(ctx, "Red Team")
	if !errors.Is(err, faction.ErrExternalUnavailable) {
		t.Fatalf("Provision error = %v, want ErrExternalUnavailable", err)
	}

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("retry Provision: %v", err)
	}
	if handle.Channel.IsZero() {
		t.Fatal("retry did not create the channel")
	}
}

func TestProvisionLinksParentSpace(t *testing.T) {
	homeserver := matrixtest.New(t, "example.org")
	parent := homeserver.CreateRoom(botID)
	provisioner := newProvisionerOn(t, homeserver, ref.MustParseRoomID(parent))

	ctx := context.Background()
	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	var child schema.SpaceChildContent
	mustState(t, homeserver, ref.MustParseRoomID(parent), schema.MatrixEventTypeSpaceChild, handle.Space.String(), &child)
	if len(child.Via) == 0 {
		t.Error("parent space has no child link to the faction space")
	}

	if err := provisioner.Deprovision(ctx, "Red Team"); err != nil {
		t.Fatalf("Deprovision: %v", err)
	}
	child = schema.SpaceChildContent{}
	mustState(t, homeserver, ref.MustParseRoomID(parent), schema.MatrixEventTypeSpaceChild, handle.Space.String(), &child)
	if len(child.Via) != 0 {
		t.Errorf("parent still links the space after Deprovision: %+v", child)
	}
}

func TestGrantAndRevoke(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if err := provisioner.Grant(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if got := homeserver.Membership(handle.Role.String(), alice.String()); got != "invite" {
		t.Fatalf("role membership after Grant = %q, want invite", got)
	}
	if err := provisioner.Grant(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("second Grant: %v", err)
	}

	homeserver.SetMembership(handle.Space.String(), alice.String(), "join")
	homeserver.SetMembership(handle.Channel.String(), alice.String(), "join")

	if err := provisioner.Revoke(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	for _, roomID := range []ref.RoomID{handle.Role, handle.Space, handle.Channel} {
		if got := homeserver.Membership(roomID.String(), alice.String()); got != "leave" {
			t.Errorf("membership in %s after Revoke = %q, want leave", roomID, got)
		}
	}
	if err := provisioner.Revoke(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestRevokeWithoutRoomsIsNoop(t *testing.T) {
	provisioner, _ := newProvisioner(t)
	if err := provisioner.Revoke(context.Background(), alice, "Nobody"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
}

func TestRevokeSkipsForeignRoom(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := provisioner.Grant(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	foreign := homeserver.CreateRoom("@mallory:example.org")
	homeserver.SetMembership(foreign, alice.String(), "join")
	homeserver.SetAlias("#faction.red-team.chat:example.org", foreign)

	if err := provisioner.Revoke(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got := homeserver.Membership(handle.Role.String(), alice.String()); got != "leave" {
		t.Errorf("role membership after Revoke = %q, want leave", got)
	}
	if got := homeserver.Membership(foreign, alice.String()); got != "join" {
		t.Errorf("membership in the foreign room = %q, want join", got)
	}
}

func TestGrantWithoutRoleRoom(t *testing.T) {
	provisioner, _ := newProvisioner(t)
	err := provisioner.Grant(context.Background(), alice, "Nobody")
	if !errors.Is(err, faction.ErrExternalUnavailable) {
		t.Fatalf("Grant error = %v, want ErrExternalUnavailable", err)
	}
}

func TestGrantPlatformFailure(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()
	if _, err := provisioner.Provision(ctx, "Red Team"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	homeserver.Fail("POST", "/invite", 503, "M_UNKNOWN", 1)
	if err := provisioner.Grant(ctx, alice, "Red Team"); !errors.Is(err, faction.ErrExternalUnavailable) {
		t.Fatalf("Grant error = %v, want ErrExternalUnavailable", err)
	}
}

func TestTokenHolders(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	for _, user := range []ref.UserID{bob, alice} {
		if err := provisioner.Grant(ctx, user, "Red Team"); err != nil {
			t.Fatalf("Grant %s: %v", user, err)
		}
	}
	homeserver.SetMembership(handle.Role.String(), carol.String(), "join")
	homeserver.SetMembership(handle.Role.String(), "@dave:example.org", "leave")

	holders, err := provisioner.TokenHolders(ctx, "Red Team")
	if err != nil {
		t.Fatalf("TokenHolders: %v", err)
	}
	want := []ref.UserID{alice, bob, carol}
	if !slices.Equal(holders, want) {
		t.Errorf("TokenHolders = %v, want %v", holders, want)
	}
}

func TestDeprovision(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := provisioner.Grant(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	homeserver.SetMembership(handle.Channel.String(), alice.String(), "join")

	if err := provisioner.Deprovision(ctx, "Red Team"); err != nil {
		t.Fatalf("Deprovision: %v", err)
	}

	for _, alias := range []string{
		"#faction.red-team:example.org",
		"#faction.red-team.space:example.org",
		"#faction.red-team.chat:example.org",
	} {
		if _, ok := homeserver.Alias(alias); ok {
			t.Errorf("alias %s survived Deprovision", alias)
		}
	}
	for _, roomID := range []ref.RoomID{handle.Role, handle.Space, handle.Channel} {
		if got := homeserver.Membership(roomID.String(), botID); got != "leave" {
			t.Errorf("bot membership in %s = %q, want leave", roomID, got)
		}
		if got := homeserver.Membership(roomID.String(), alice.String()); got == "join" || got == "invite" {
			t.Errorf("alice still holds %q in %s", got, roomID)
		}
		var rules schema.JoinRulesContent
		mustState(t, homeserver, roomID, schema.MatrixEventTypeJoinRules, "", &rules)
		if rules.JoinRule != schema.JoinRuleInvite {
			t.Errorf("join rule of %s = %q, want invite", roomID, rules.JoinRule)
		}
	}

	if err := provisioner.Deprovision(ctx, "Red Team"); err != nil {
		t.Fatalf("second Deprovision: %v", err)
	}
}

func TestDeprovisionLeavesForeignRoomStanding(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)

	foreign := homeserver.CreateRoom("@mallory:example.org")
	homeserver.SetAlias("#faction.red-team:example.org", foreign)

	if err := provisioner.Deprovision(context.Background(), "Red Team"); err != nil {
		t.Fatalf("Deprovision: %v", err)
	}
	if _, ok := homeserver.Alias("#faction.red-team:example.org"); !ok {
		t.Error("foreign alias was deleted")
	}
}

func TestRename(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := provisioner.Grant(ctx, alice, "Red Team"); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	if err := provisioner.Rename(ctx, "Red Team", "Crimson"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	assertRenamed(t, homeserver, handle, "red-team", "crimson", "Crimson")

	if got := homeserver.Membership(handle.Role.String(), alice.String()); got != "invite" {
		t.Errorf("alice membership after Rename = %q, want invite", got)
	}

	again, err := provisioner.Provision(ctx, "Crimson")
	if err != nil {
		t.Fatalf("Provision after Rename: %v", err)
	}
	if again != handle {
		t.Errorf("Provision after Rename = %+v, want the original rooms %+v", again, handle)
	}
}

func assertRenamed(t *testing.T, homeserver *matrixtest.Homeserver, handle Handle, oldSlug, newSlug, newName string) {
	t.Helper()
	for kind, roomID := range map[schema.ResourceKind]ref.RoomID{
		schema.ResourceRole:    handle.Role,
		schema.ResourceSpace:   handle.Space,
		schema.ResourceChannel: handle.Channel,
	} {
		if oldSlug != newSlug {
			if _, ok := homeserver.Alias("#" + AliasLocalpart(oldSlug, kind) + ":example.org"); ok {
				t.Errorf("old %s alias survived the rename", kind)
			}
		}
		got, ok := aliasTarget(t, homeserver, "#"+AliasLocalpart(newSlug, kind)+":example.org")
		if !ok || got != roomID {
			t.Errorf("new %s alias = %v (found %v), want %s", kind, got, ok, roomID)
		}
		var marker schema.FactionMarkerContent
		mustState(t, homeserver, roomID, schema.EventTypeFaction, "", &marker)
		if marker.Name != newName {
			t.Errorf("%s marker name = %q, want %q", kind, marker.Name, newName)
		}
	}
	var roleName, spaceName schema.RoomNameContent
	mustState(t, homeserver, handle.Role, schema.MatrixEventTypeRoomName, "", &roleName)
	mustState(t, homeserver, handle.Space, schema.MatrixEventTypeRoomName, "", &spaceName)
	if roleName.Name != newName {
		t.Errorf("role room name = %q, want %q", roleName.Name, newName)
	}
	if want := faction.ChannelGroupName(newName); spaceName.Name != want {
		t.Errorf("space name = %q, want %q", spaceName.Name, want)
	}
}

func TestRenameResumesAfterFailure(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "Red Team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// The role room gets its new alias, then the name update fails.
	homeserver.Fail("PUT", "/state/m.room.name/", 500, "M_UNKNOWN", 1)
	if err := provisioner.Rename(ctx, "Red Team", "Crimson"); !errors.Is(err, faction.ErrExternalUnavailable) {
		t.Fatalf("first Rename error = %v, want ErrExternalUnavailable", err)
	}

	if err := provisioner.Rename(ctx, "Red Team", "Crimson"); err != nil {
		t.Fatalf("resumed Rename: %v", err)
	}
	assertRenamed(t, homeserver, handle, "red-team", "crimson", "Crimson")
}

func TestRenameSameSlug(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	handle, err := provisioner.Provision(ctx, "red team")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := provisioner.Rename(ctx, "red team", "Red Team"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	assertRenamed(t, homeserver, handle, "red-team", "red-team", "Red Team")
}

func TestRenameOntoForeignAlias(t *testing.T) {
	provisioner, homeserver := newProvisioner(t)
	ctx := context.Background()

	if _, err := provisioner.Provision(ctx, "Red Team"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	foreign := homeserver.CreateRoom("@mallory:example.org")
	homeserver.SetAlias("#faction.crimson:example.org", foreign)

	err := provisioner.Rename(ctx, "Red Team", "Crimson")
	if !errors.Is(err, faction.ErrResourceConflict) {
		t.Fatalf("Rename error = %v, want ErrResourceConflict", err)
	}
}

func TestNewRequiresSession(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without a session succeeded")
	}
}
