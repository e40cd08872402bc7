// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/factionkeep/factionkeep/lib/authorization"
	"github.com/factionkeep/factionkeep/lib/clock"
	"github.com/factionkeep/factionkeep/lib/conflict"
	"github.com/factionkeep/factionkeep/lib/economy"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
	"github.com/factionkeep/factionkeep/lib/membership"
	"github.com/factionkeep/factionkeep/lib/provision/provisiontest"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/registry"
	"github.com/factionkeep/factionkeep/lib/reply"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/testutil"
	"github.com/factionkeep/factionkeep/messaging"
)

var (
	bot    = ref.MustParseUserID("@factionkeep:example.org")
	admin  = ref.MustParseUserID("@admin:example.org")
	mod    = ref.MustParseUserID("@mod:example.org")
	player = ref.MustParseUserID("@player:example.org")
	lobby  = ref.MustParseRoomID("!lobby:example.org")
	mods   = ref.MustParseRoomID("!mods:example.org")
)

type sentMessage struct {
	room    ref.RoomID
	content messaging.MessageContent
}

// fakeSession records replies and resolves aliases from a map.
type fakeSession struct {
	mu      sync.Mutex
	sent    []sentMessage
	aliases map[ref.RoomAlias]ref.RoomID
	sendErr error
}

func (s *fakeSession) UserID() ref.UserID { return bot }

func (s *fakeSession) SendMessage(_ context.Context, room ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return ref.EventID{}, s.sendErr
	}
	s.sent = append(s.sent, sentMessage{room: room, content: content})
	return ref.MustParseEventID(fmt.Sprintf("$reply%d", len(s.sent))), nil
}

func (s *fakeSession) ResolveAlias(_ context.Context, alias ref.RoomAlias) (ref.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.aliases[alias]
	if !ok {
		return ref.RoomID{}, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, StatusCode: 404}
	}
	return roomID, nil
}

func (s *fakeSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSession) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

// fakeDirectory makes admin an administrator of lobby and answers
// trusted-group membership from a map.
type fakeDirectory struct {
	mu      sync.Mutex
	members map[ref.RoomID]map[ref.UserID]bool
	down    bool
}

func (d *fakeDirectory) PowerLevel(_ context.Context, room ref.RoomID, user ref.UserID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return 0, errors.New("connection refused")
	}
	if room == lobby && user == admin {
		return 100, nil
	}
	return 0, nil
}

func (d *fakeDirectory) IsMember(_ context.Context, room ref.RoomID, user ref.UserID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return false, errors.New("connection refused")
	}
	return d.members[room][user], nil
}

type fixture struct {
	dispatcher  *Dispatcher
	session     *fakeSession
	directory   *fakeDirectory
	provisioner *provisiontest.Recorder
	store       *factionstore.Store
	clock       *clock.FakeClock
	events      atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(*Config) {})
}

func newFixtureWith(t *testing.T, adjust func(*Config)) *fixture {
	t.Helper()
	logger := testutil.Logger(t)
	fake := clock.Fake(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	store, err := factionstore.Open(factionstore.Config{
		Path:   filepath.Join(t.TempDir(), "factionkeep.db"),
		Clock:  fake,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("factionstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	provisioner := provisiontest.New()
	registryService, err := registry.New(registry.Config{Store: store, Provisioner: provisioner, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	membershipService, err := membership.New(membership.Config{Store: store, Provisioner: provisioner, Clock: fake, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	economyService, err := economy.New(economy.Config{Store: store, Clock: fake, CheckinPoints: 10, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	graph, err := conflict.New(conflict.Config{Store: store, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	directory := &fakeDirectory{members: make(map[ref.RoomID]map[ref.UserID]bool)}
	gate, err := authorization.New(authorization.Config{Store: store, Directory: directory, AdminPowerLevel: 100, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	session := &fakeSession{aliases: make(map[ref.RoomAlias]ref.RoomID)}

	config := Config{
		Session:    session,
		Registry:   registryService,
		Membership: membershipService,
		Economy:    economyService,
		Conflicts:  graph,
		Gate:       gate,
		Logger:     logger,
	}
	adjust(&config)
	dispatcher, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{
		dispatcher:  dispatcher,
		session:     session,
		directory:   directory,
		provisioner: provisioner,
		store:       store,
		clock:       fake,
	}
}

func (f *fixture) event(sender ref.UserID, content messaging.MessageContent) messaging.Event {
	raw, err := json.Marshal(content)
	if err != nil {
		panic(err)
	}
	return messaging.Event{
		EventID: ref.MustParseEventID(fmt.Sprintf("$command%d", f.events.Add(1))),
		Type:    schema.MatrixEventTypeMessage,
		Sender:  sender,
		Content: raw,
	}
}

// say sends body from sender in lobby and returns the single reply.
func (f *fixture) say(t *testing.T, sender ref.UserID, body string) string {
	t.Helper()
	before := f.session.count()
	if err := f.dispatcher.Handle(context.Background(), lobby, f.event(sender, messaging.NewTextMessage(body))); err != nil {
		t.Fatalf("Handle(%q): %v", body, err)
	}
	if got := f.session.count() - before; got != 1 {
		t.Fatalf("Handle(%q) sent %d replies, want 1", body, got)
	}
	return f.session.last().content.Body
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply %q does not contain %q", got, want)
	}
}

func TestMemberLifecycle(t *testing.T) {
	f := newFixture(t)

	requireContains(t, f.say(t, admin, "!faction create Red Team"), "Created faction **Red Team**")
	requireContains(t, f.say(t, player, "!faction join red team"), "Welcome to **Red Team**")
	if !f.provisioner.HasToken(player, "Red Team") {
		t.Error("join did not grant the token")
	}
	requireContains(t, f.say(t, player, "!faction join Red Team"), "already in a faction")

	info := f.say(t, player, "!faction info RED TEAM")
	requireContains(t, info, "- Members: 1")
	requireContains(t, info, "- Leader: unassigned")

	requireContains(t, f.say(t, player, "!faction checkin"), "+10 points, 10 total")
	requireContains(t, f.say(t, player, "!faction checkin"), "already checked in")
	f.clock.Advance(24 * time.Hour)
	requireContains(t, f.say(t, player, "!faction checkin"), "20 total")

	requireContains(t, f.say(t, admin, "!faction leader Red Team @player:example.org"), "@player:example.org now leads **Red Team**")
	requireContains(t, f.say(t, player, "!faction members Red Team"), "1 member:")

	requireContains(t, f.say(t, player, "!faction leave"), "You left **Red Team**")
	if f.provisioner.HasToken(player, "Red Team") {
		t.Error("leave did not revoke the token")
	}
	requireContains(t, f.say(t, player, "!faction leave"), "You are not in a faction")
	requireContains(t, f.say(t, player, "!faction checkin"), "Join a faction before checking in")
}

func TestPrivilegedCommandsDeniedBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	f.say(t, admin, "!faction create Red Team")
	calls := len(f.provisioner.Calls())

	for _, body := range []string{
		"!faction create Blue Team",
		"!faction delete Red Team",
		`!faction rename "Red Team" Crimson`,
		"!faction add @player:example.org Red Team",
		"!faction reset",
		"!faction trust !mods:example.org",
	} {
		requireContains(t, f.say(t, player, body), "not allowed")
	}
	if got := len(f.provisioner.Calls()); got != calls {
		t.Errorf("denied commands made %d platform calls", got-calls)
	}
}

func TestTrustedGroupMembersRunPrivilegedCommands(t *testing.T) {
	f := newFixture(t)
	f.session.aliases[ref.MustParseRoomAlias("#mods:example.org")] = mods
	f.directory.members[mods] = map[ref.UserID]bool{mod: true}

	requireContains(t, f.say(t, mod, "!faction create Red Team"), "not allowed")
	requireContains(t, f.say(t, admin, "!faction trust #mods:example.org"), "Members of !mods:example.org can now run")
	requireContains(t, f.say(t, mod, "!faction create Red Team"), "Created faction")
	requireContains(t, f.say(t, player, "!faction trusted"), "!mods:example.org (added by @admin:example.org)")

	// Trusted members cannot manage trust.
	requireContains(t, f.say(t, mod, "!faction untrust !mods:example.org"), "not allowed")
	requireContains(t, f.say(t, admin, "!faction untrust !mods:example.org"), "no longer trusted")
	requireContains(t, f.say(t, mod, "!faction delete Red Team"), "not allowed")
	requireContains(t, f.say(t, admin, "!faction trust #nowhere:example.org"), "Usage: `!faction trust <room>`")
}

func TestDirectoryOutageFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.directory.down = true
	requireContains(t, f.say(t, admin, "!faction create Red Team"), "did not respond")
	if len(f.provisioner.Calls()) != 0 {
		t.Errorf("platform calls during outage: %v", f.provisioner.Ops())
	}
	// Public commands do not consult the directory.
	requireContains(t, f.say(t, player, "!faction list"), "no factions yet")
}

func TestRenameAndConflicts(t *testing.T) {
	f := newFixture(t)
	f.say(t, admin, "!faction create Red Team")
	f.say(t, admin, "!faction create Blue Team")

	requireContains(t, f.say(t, admin, `!faction rename "Red Team" "Crimson Tide"`), "Renamed **Red Team** to **Crimson Tide**")
	requireContains(t, f.say(t, player, "!faction info Red Team"), "no faction with that name")

	requireContains(t, f.say(t, admin, `!faction war "Crimson Tide" "Blue Team"`), "**Crimson Tide** has declared war on **Blue Team**")
	requireContains(t, f.say(t, admin, `!faction war "Blue Team" "Crimson Tide"`), "already at war")
	requireContains(t, f.say(t, admin, `!faction war "Blue Team" "blue team"`), "cannot go to war with itself")
	requireContains(t, f.say(t, player, "!faction wars"), "**Crimson Tide** vs **Blue Team**, since 2026-03-04")
	requireContains(t, f.say(t, admin, `!faction peace "Blue Team" "Crimson Tide"`), "Peace between")
	requireContains(t, f.say(t, admin, `!faction peace "Blue Team" "Crimson Tide"`), "not at war")
	requireContains(t, f.say(t, player, "!faction wars"), "No active conflicts")
}

func TestDeleteReportsReleasedMembers(t *testing.T) {
	f := newFixture(t)
	f.say(t, admin, "!faction create Red Team")
	f.say(t, player, "!faction join Red Team")

	requireContains(t, f.say(t, admin, "!faction delete red team"), "Deleted faction **Red Team**. 1 member is no longer affiliated.")
	if f.provisioner.Provisioned("Red Team") {
		t.Error("rooms still provisioned after delete")
	}
}

func TestPartialCreateSuggestsRepair(t *testing.T) {
	f := newFixture(t)
	f.provisioner.FailNext("provision", nil)

	requireContains(t, f.say(t, admin, "!faction create Red Team"), "`!faction repair Red Team`")
	requireContains(t, f.say(t, admin, "!faction repair Red Team"), "Rooms for **Red Team** are in place")
	if !f.provisioner.Provisioned("Red Team") {
		t.Error("repair did not provision")
	}
}

func TestAuditReply(t *testing.T) {
	f := newFixture(t)
	f.say(t, admin, "!faction create Red Team")
	f.say(t, player, "!faction join Red Team")
	requireContains(t, f.say(t, admin, "!faction audit Red Team"), "is consistent")

	f.provisioner.SetToken(player, "Red Team", false)
	f.provisioner.SetToken(mod, "Red Team", true)
	drift := f.say(t, admin, "!faction audit Red Team")
	requireContains(t, drift, "Members without access:\n\n- @player:example.org")
	requireContains(t, drift, "Access without membership:\n\n- @mod:example.org")
}

func TestLeaderboardTable(t *testing.T) {
	f := newFixture(t)
	f.say(t, admin, "!faction create Red Team")
	f.say(t, admin, "!faction create Blue Team")
	f.say(t, player, "!faction join Blue Team")
	f.say(t, player, "!faction checkin")

	board := f.say(t, player, "!faction leaderboard")
	requireContains(t, board, "| 1 | Blue Team | 10 | unassigned |")
	requireContains(t, board, "| 2 | Red Team | 0 | unassigned |")
	if !strings.Contains(f.session.last().content.FormattedBody, "<table>") {
		t.Errorf("leaderboard not rendered as a table: %q", f.session.last().content.FormattedBody)
	}

	requireContains(t, f.say(t, admin, "!faction reset"), "Points reset for 2 factions")
	requireContains(t, f.say(t, player, "!faction list"), "| 1 | Blue Team | 0 |")
}

func TestUsageErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		body string
		want string
	}{
		{"!faction join", "Usage: `!faction join <faction>`"},
		{"!faction leave now", "Usage: `!faction leave`"},
		{"!faction rename Red", "Usage: `!faction rename \"<old>\" \"<new>\"`"},
		{"!faction add player Red Team", "Usage: `!faction add <@user> <faction>`"},
		{"!faction trust lobby", "Usage: `!faction trust <room>`"},
		{`!faction join "Red Team`, "Could not read that command: unterminated double quote"},
		{"!faction dance", "Unknown command `dance`"},
		{`!faction create ""`, "Usage: `!faction create <faction>`"},
		{`!faction create "*"`, "not a valid faction name"},
	}
	for _, test := range tests {
		t.Run(test.body, func(t *testing.T) {
			requireContains(t, f.say(t, admin, test.body), test.want)
		})
	}
}

func TestHelp(t *testing.T) {
	f := newFixture(t)
	help := f.say(t, player, "!faction")
	for _, want := range []string{"`!faction join <faction>`", "Privileged:", "`!faction war \"<faction>\" \"<faction>\"`", "Admin-only:", "`!faction trust <room>`"} {
		requireContains(t, help, want)
	}
}

func TestRepliesAreThreaded(t *testing.T) {
	f := newFixture(t)
	event := f.event(player, messaging.NewTextMessage("!faction list"))
	if err := f.dispatcher.Handle(context.Background(), lobby, event); err != nil {
		t.Fatal(err)
	}
	sent := f.session.last()
	if sent.room != lobby {
		t.Errorf("reply sent to %s", sent.room)
	}
	if sent.content.MsgType != "m.notice" || sent.content.Format != reply.FormatHTML {
		t.Errorf("reply content = %+v", sent.content)
	}
	if sent.content.RelatesTo == nil || sent.content.RelatesTo.InReplyTo.EventID != event.EventID {
		t.Errorf("reply not threaded to %s: %+v", event.EventID, sent.content.RelatesTo)
	}
}

func TestIgnoresNonCommands(t *testing.T) {
	f := newFixture(t)
	notice := messaging.NewNoticeMessage("!faction list")
	events := []messaging.Event{
		f.event(player, messaging.NewTextMessage("hello there")),
		f.event(player, notice),
		f.event(bot, messaging.NewTextMessage("!faction list")),
		{EventID: ref.MustParseEventID("$state"), Type: schema.MatrixEventTypeRoomName, Sender: player, Content: json.RawMessage(`{"name":"!faction list"}`)},
	}
	for _, event := range events {
		if err := f.dispatcher.Handle(context.Background(), lobby, event); err != nil {
			t.Errorf("Handle: %v", err)
		}
	}
	if n := f.session.count(); n != 0 {
		t.Errorf("sent %d replies to non-commands", n)
	}
}

func TestCustomPrefix(t *testing.T) {
	f := newFixtureWith(t, func(config *Config) { config.Prefix = "!fk" })
	requireContains(t, f.say(t, player, "!fk list"), "no factions yet")
	requireContains(t, f.say(t, player, "!fk dance"), "Try `!fk help`")
}

// blockingRegistry never finishes Create until its context ends.
type blockingRegistry struct {
	Registry
}

func (blockingRegistry) Create(ctx context.Context, _ string) (faction.Faction, error) {
	<-ctx.Done()
	return faction.Faction{}, ctx.Err()
}

func TestTimedOutCommandStillReplies(t *testing.T) {
	f := newFixtureWith(t, func(config *Config) {
		config.Registry = blockingRegistry{Registry: config.Registry}
		config.Timeout = 20 * time.Millisecond
	})
	requireContains(t, f.say(t, admin, "!faction create Red Team"), "took too long")
}

func TestSendFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.session.sendErr = errors.New("rate limited")
	err := f.dispatcher.Handle(context.Background(), lobby, f.event(player, messaging.NewTextMessage("!faction list")))
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Handle = %v, want the send error", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Session: &fakeSession{}})
	if err == nil {
		t.Fatal("New with missing collaborators succeeded")
	}
	for _, name := range []string{"Registry", "Membership", "Economy", "Conflicts", "Gate"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}
