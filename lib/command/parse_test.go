// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"errors"
	"slices"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		body   string
		ok     bool
		name   string
		args   []string
		hasErr bool
	}{
		{body: "!faction join Red Team", ok: true, name: "join", args: []string{"Red", "Team"}},
		{body: "  !faction   JOIN   red  ", ok: true, name: "join", args: []string{"red"}},
		{body: `!faction rename "Red Team" Crimson`, ok: true, name: "rename", args: []string{"Red Team", "Crimson"}},
		{body: `!faction rename "Red Team" "Crimson Tide"`, ok: true, name: "rename", args: []string{"Red Team", "Crimson Tide"}},
		{body: `!faction war Red"Team" Blue`, ok: true, name: "war", args: []string{"RedTeam", "Blue"}},
		{body: `!faction create ""`, ok: true, name: "create", args: []string{""}},
		{body: "!faction\njoin\tRed", ok: true, name: "join", args: []string{"Red"}},
		{body: "!faction", ok: true, name: "help"},
		{body: "!faction   ", ok: true, name: "help"},
		{body: `!faction rename "Red Team Crimson`, ok: true, hasErr: true},
		{body: "!factions join Red", ok: false},
		{body: "hello !faction join Red", ok: false},
		{body: "", ok: false},
	}
	for _, test := range tests {
		t.Run(test.body, func(t *testing.T) {
			invocation, ok, err := Parse("!faction", test.body)
			if ok != test.ok {
				t.Fatalf("ok = %v, want %v", ok, test.ok)
			}
			if test.hasErr {
				if !errors.Is(err, ErrUnterminatedQuote) {
					t.Fatalf("err = %v, want ErrUnterminatedQuote", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if invocation.Name != test.name || !slices.Equal(invocation.Args, test.args) {
				t.Errorf("Parse = %q %q, want %q %q", invocation.Name, invocation.Args, test.name, test.args)
			}
		})
	}
}

func TestParseEmptyPrefix(t *testing.T) {
	if _, ok, _ := Parse("", "join Red"); ok {
		t.Error("empty prefix matched a message")
	}
}
