// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
	"github.com/factionkeep/factionkeep/lib/codec"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/lib/service"
	"github.com/factionkeep/factionkeep/lib/testutil"
)

var (
	lobby  = ref.MustParseRoomID("!lobby:test")
	mods   = ref.MustParseRoomID("!mods:test")
	leader = ref.MustParseUserID("@ana:test")
)

// fakeService is an admin socket with canned answers. It records the
// requests it receives.
type fakeService struct {
	socketPath string

	mu      sync.Mutex
	limits  []int
	resets  int
	trusted []faction.TrustedGroup
}

func startFakeService(t *testing.T) *fakeService {
	t.Helper()
	fake := &fakeService{socketPath: filepath.Join(testutil.SocketDir(t), "admin.sock")}
	server := service.NewSocketServer(fake.socketPath, testutil.Logger(t))

	server.Handle(schema.AdminActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		return schema.StatusResponse{
			Version:       "test",
			UserID:        ref.MustParseUserID("@factionkeep:test"),
			UptimeSeconds: 3725,
			Factions:      2,
			Members:       5,
			SchemaVersion: 1,
		}, nil
	})
	server.Handle(schema.AdminActionLeaderboard, func(ctx context.Context, raw []byte) (any, error) {
		var request schema.LeaderboardRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.limits = append(fake.limits, request.Limit)
		return schema.LeaderboardResponse{Factions: []faction.Faction{
			{Name: "Blue Team", Points: 12, Leader: leader},
			{Name: "Red Team", Points: 3},
		}}, nil
	})
	server.Handle(schema.AdminActionReset, func(ctx context.Context, raw []byte) (any, error) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		fake.resets++
		return schema.ResetResponse{Reset: 2}, nil
	})
	server.Handle(schema.AdminActionTrustedList, func(ctx context.Context, raw []byte) (any, error) {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return schema.TrustedListResponse{Groups: fake.trusted}, nil
	})
	server.Handle(schema.AdminActionTrustedAdd, func(ctx context.Context, raw []byte) (any, error) {
		var request schema.TrustedGroupRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		group := faction.TrustedGroup{
			Workspace: ref.MustParseRoomID(request.Workspace),
			Group:     ref.MustParseRoomID(request.Group),
			AddedAt:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		}
		fake.mu.Lock()
		fake.trusted = append(fake.trusted, group)
		fake.mu.Unlock()
		return schema.TrustedAddResponse{Group: group}, nil
	})
	server.Handle(schema.AdminActionTrustedRemove, func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("group %s: %w", mods, faction.ErrNotFound)
	})
	server.Handle(schema.AdminActionRepair, func(ctx context.Context, raw []byte) (any, error) {
		return nil, &faction.PartialFailure{Faction: "Red Team", Op: "repair", Err: errors.New("homeserver refused")}
	})
	server.Handle(schema.AdminActionAudit, func(ctx context.Context, raw []byte) (any, error) {
		var request schema.FactionRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		report := faction.AuditReport{Faction: request.Name}
		if request.Name == "Red Team" {
			report.StrayToken = []ref.UserID{ref.MustParseUserID("@eve:test")}
		}
		return schema.AuditResponse{Report: report}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "fake service did not stop")
	})
	for {
		if _, err := os.Stat(fake.socketPath); err == nil {
			break
		}
		if t.Context().Err() != nil {
			t.Fatal("socket did not appear")
		}
		time.Sleep(time.Millisecond)
	}
	return fake
}

type fakeState struct {
	limits []int
	resets int
}

func (f *fakeService) snapshot() fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeState{limits: append([]int(nil), f.limits...), resets: f.resets}
}

// run executes the CLI against the fake service and returns stdout.
func (f *fakeService) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	// Flags go after the subcommand path.
	args = append(args, "--socket", f.socketPath)
	err := Root(&stdout).Execute(args)
	return stdout.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return cli.Categorize(err).ExitCode()
}

func TestStatus(t *testing.T) {
	fake := startFakeService(t)
	output, err := fake.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"@factionkeep:test", "1h2m5s", "Factions:         2", "Next reset:       none"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestLeaderboard(t *testing.T) {
	fake := startFakeService(t)
	output, err := fake.run(t, "leaderboard", "-n", "5")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if limits := fake.snapshot().limits; len(limits) != 1 || limits[0] != 5 {
		t.Errorf("service saw limits %v, want [5]", limits)
	}
	for _, want := range []string{"Blue Team", "12", "@ana:test", "Red Team"} {
		if !strings.Contains(output, want) {
			t.Errorf("leaderboard output missing %q:\n%s", want, output)
		}
	}
	if strings.Index(output, "Blue Team") > strings.Index(output, "Red Team") {
		t.Errorf("leaderboard reordered the service's ranking:\n%s", output)
	}

	output, err = fake.run(t, "leaderboard", "--json")
	if err != nil {
		t.Fatalf("leaderboard --json: %v", err)
	}
	var factions []faction.Faction
	if err := json.Unmarshal([]byte(output), &factions); err != nil {
		t.Fatalf("leaderboard --json output is not JSON: %v\n%s", err, output)
	}
	if len(factions) != 2 || factions[0].Leader != leader {
		t.Errorf("factions = %+v", factions)
	}

	_, err = fake.run(t, "leaderboard", "--limit=-1")
	if exitCode(err) != cli.CategoryValidation.ExitCode() {
		t.Errorf("negative limit: err = %v, want a validation error", err)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	fake := startFakeService(t)

	_, err := fake.run(t, "reset")
	if exitCode(err) != cli.CategoryValidation.ExitCode() {
		t.Fatalf("reset without --yes: err = %v, want a validation error", err)
	}
	if fake.snapshot().resets != 0 {
		t.Fatal("reset reached the service without confirmation")
	}

	output, err := fake.run(t, "reset", "--yes")
	if err != nil {
		t.Fatalf("reset --yes: %v", err)
	}
	if resets := fake.snapshot().resets; resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	if !strings.Contains(output, "Points reset for 2 factions.") {
		t.Errorf("reset output = %q", output)
	}
}

func TestTrusted(t *testing.T) {
	fake := startFakeService(t)

	output, err := fake.run(t, "trusted", "list", lobby.String())
	if err != nil {
		t.Fatalf("trusted list: %v", err)
	}
	if !strings.Contains(output, "No trusted groups.") {
		t.Errorf("empty list output = %q", output)
	}

	if _, err := fake.run(t, "trusted", "add", lobby.String(), mods.String()); err != nil {
		t.Fatalf("trusted add: %v", err)
	}
	output, err = fake.run(t, "trusted", "list", lobby.String())
	if err != nil {
		t.Fatalf("trusted list: %v", err)
	}
	for _, want := range []string{mods.String(), "operator", "2026-03-04"} {
		if !strings.Contains(output, want) {
			t.Errorf("trusted list output missing %q:\n%s", want, output)
		}
	}

	_, err = fake.run(t, "trusted", "remove", lobby.String(), mods.String())
	if !errors.Is(err, faction.ErrNotFound) {
		t.Errorf("trusted remove: err = %v, want ErrNotFound", err)
	}
	if exitCode(err) != 3 {
		t.Errorf("exit code = %d, want 3", exitCode(err))
	}

	_, err = fake.run(t, "trusted", "add", lobby.String())
	if exitCode(err) != cli.CategoryValidation.ExitCode() {
		t.Errorf("trusted add with one room: err = %v, want a validation error", err)
	}
}

func TestRepairPartialFailure(t *testing.T) {
	fake := startFakeService(t)
	_, err := fake.run(t, "repair", "Red", "Team")
	if exitCode(err) != cli.CategoryPartial.ExitCode() {
		t.Errorf("repair: err = %v, exit %d, want the partial exit code", err, exitCode(err))
	}

	_, err = fake.run(t, "repair")
	if exitCode(err) != cli.CategoryValidation.ExitCode() {
		t.Errorf("repair without a name: err = %v, want a validation error", err)
	}
}

func TestAudit(t *testing.T) {
	fake := startFakeService(t)

	output, err := fake.run(t, "audit", "Blue Team")
	if err != nil {
		t.Fatalf("audit of a consistent faction: %v", err)
	}
	if !strings.Contains(output, "Blue Team is consistent.") {
		t.Errorf("audit output = %q", output)
	}

	output, err = fake.run(t, "audit", "Red Team")
	if exitCode(err) != cli.CategoryConflict.ExitCode() {
		t.Errorf("audit with drift: err = %v, want the conflict exit code", err)
	}
	if !strings.Contains(output, "@eve:test") {
		t.Errorf("audit output missing the stray holder:\n%s", output)
	}
}

func TestServiceNotRunning(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "missing.sock")
	var stdout bytes.Buffer
	err := Root(&stdout).Execute([]string{"status", "--socket", socketPath})
	if exitCode(err) != cli.CategoryUnavailable.ExitCode() {
		t.Errorf("err = %v, exit %d, want the unavailable exit code", err, exitCode(err))
	}
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	if err := Root(&stdout).Execute([]string{"version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout.String(), "factionkeep ") {
		t.Errorf("version output = %q", stdout.String())
	}
}

func TestReadPasswordFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	password, err := readPassword(path)
	if err != nil {
		t.Fatalf("readPassword: %v", err)
	}
	defer password.Close()
	if password.String() != "hunter2" {
		t.Errorf("password = %q, want hunter2", password.String())
	}

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readPassword(empty); exitCode(err) != cli.CategoryValidation.ExitCode() {
		t.Errorf("empty password: err = %v, want a validation error", err)
	}
}
