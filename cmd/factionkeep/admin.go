// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
	"github.com/factionkeep/factionkeep/lib/schema"
)

func statusCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "status",
		Summary: "Show the running service's state",
		Flags:   conn.flags("status", nil),
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			var status schema.StatusResponse
			if err := conn.call(schema.AdminActionStatus, nil, &status); err != nil {
				return err
			}
			if conn.json {
				return cli.WriteJSON(stdout, status)
			}
			nextReset := "none"
			if !status.NextReset.IsZero() {
				nextReset = status.NextReset.Format(time.RFC3339)
			}
			fmt.Fprintf(stdout, "Version:          %s\n", status.Version)
			fmt.Fprintf(stdout, "Bot user:         %s\n", status.UserID)
			fmt.Fprintf(stdout, "Uptime:           %s\n", time.Duration(status.UptimeSeconds)*time.Second)
			fmt.Fprintf(stdout, "Factions:         %d\n", status.Factions)
			fmt.Fprintf(stdout, "Members:          %d\n", status.Members)
			fmt.Fprintf(stdout, "Active conflicts: %d\n", status.ActiveConflict)
			fmt.Fprintf(stdout, "Pending renames:  %d\n", status.PendingRenames)
			fmt.Fprintf(stdout, "Next reset:       %s\n", nextReset)
			fmt.Fprintf(stdout, "Schema version:   %d\n", status.SchemaVersion)
			return nil
		},
	}
}

func leaderboardCommand(stdout io.Writer) *cli.Command {
	var (
		conn  connection
		limit int
	)
	return &cli.Command{
		Name:    "leaderboard",
		Summary: "List factions by points",
		Flags: conn.flags("leaderboard", func(flagSet *pflag.FlagSet) {
			flagSet.IntVarP(&limit, "limit", "n", 10, "number of factions to show (0 for all)")
		}),
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if limit < 0 {
				return cli.Validation("--limit must not be negative")
			}
			var board schema.LeaderboardResponse
			if err := conn.call(schema.AdminActionLeaderboard, schema.LeaderboardRequest{Limit: limit}, &board); err != nil {
				return err
			}
			if conn.json {
				return cli.WriteJSON(stdout, board.Factions)
			}
			if len(board.Factions) == 0 {
				fmt.Fprintln(stdout, "No factions yet.")
				return nil
			}
			rows := make([][]string, 0, len(board.Factions))
			for index, entry := range board.Factions {
				leader := "-"
				if !entry.Leader.IsZero() {
					leader = entry.Leader.String()
				}
				rows = append(rows, []string{strconv.Itoa(index + 1), entry.Name, strconv.FormatInt(entry.Points, 10), leader})
			}
			fmt.Fprint(stdout, renderTable([]string{"#", "Faction", "Points", "Leader"}, rows, 0, 2))
			return nil
		},
	}
}

func resetCommand(stdout io.Writer) *cli.Command {
	var (
		conn connection
		yes  bool
	)
	return &cli.Command{
		Name:    "reset",
		Summary: "Reset every faction's points to zero now",
		Description: `Reset every faction's points to zero, as the weekly schedule does.
This cannot be undone, so --yes is required.`,
		Flags: conn.flags("reset", func(flagSet *pflag.FlagSet) {
			flagSet.BoolVarP(&yes, "yes", "y", false, "confirm the reset")
		}),
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if !yes {
				return cli.Validation("resetting points cannot be undone; pass --yes to confirm")
			}
			var reset schema.ResetResponse
			if err := conn.call(schema.AdminActionReset, nil, &reset); err != nil {
				return err
			}
			if conn.json {
				return cli.WriteJSON(stdout, reset)
			}
			fmt.Fprintf(stdout, "Points reset for %d factions.\n", reset.Reset)
			return nil
		},
	}
}

func trustedCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "trusted",
		Summary: "Manage groups trusted to run privileged commands",
		Description: `Trusted groups are rooms whose joined members may run privileged
commands in a workspace room. Rooms are given as IDs (!abc:example.org)
or aliases (#moderators:example.org).`,
		Subcommands: []*cli.Command{
			trustedListCommand(stdout),
			trustedChangeCommand(stdout, "add", "Trust a group in a workspace", schema.AdminActionTrustedAdd),
			trustedChangeCommand(stdout, "remove", "Stop trusting a group in a workspace", schema.AdminActionTrustedRemove),
		},
	}
}

func trustedListCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "list",
		Summary: "List a workspace's trusted groups",
		Usage:   "factionkeep trusted list <workspace-room> [flags]",
		Flags:   conn.flags("list", nil),
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one workspace room\n\nUsage: factionkeep trusted list <workspace-room>")
			}
			var listed schema.TrustedListResponse
			if err := conn.call(schema.AdminActionTrustedList, schema.TrustedListRequest{Workspace: args[0]}, &listed); err != nil {
				return err
			}
			if conn.json {
				return cli.WriteJSON(stdout, listed.Groups)
			}
			if len(listed.Groups) == 0 {
				fmt.Fprintln(stdout, "No trusted groups.")
				return nil
			}
			rows := make([][]string, 0, len(listed.Groups))
			for _, group := range listed.Groups {
				addedBy := "operator"
				if !group.AddedBy.IsZero() {
					addedBy = group.AddedBy.String()
				}
				rows = append(rows, []string{group.Group.String(), addedBy, group.AddedAt.Format(time.DateOnly)})
			}
			fmt.Fprint(stdout, renderTable([]string{"Group", "Added by", "Added"}, rows))
			return nil
		},
	}
}

func trustedChangeCommand(stdout io.Writer, name, summary, action string) *cli.Command {
	var conn connection
	usage := fmt.Sprintf("factionkeep trusted %s <workspace-room> <group-room> [flags]", name)
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags:   conn.flags(name, nil),
		Run: func(args []string) error {
			if len(args) != 2 {
				return cli.Validation("expected a workspace room and a group room\n\nUsage: %s", usage)
			}
			request := schema.TrustedGroupRequest{Workspace: args[0], Group: args[1]}
			if action == schema.AdminActionTrustedAdd {
				var added schema.TrustedAddResponse
				if err := conn.call(action, request, &added); err != nil {
					return err
				}
				if conn.json {
					return cli.WriteJSON(stdout, added.Group)
				}
				fmt.Fprintf(stdout, "Members of %s can now run privileged commands in %s.\n", added.Group.Group, added.Group.Workspace)
				return nil
			}
			if err := conn.call(action, request, nil); err != nil {
				return err
			}
			if !conn.json {
				fmt.Fprintf(stdout, "Members of %s are no longer trusted in %s.\n", args[1], args[0])
			}
			return nil
		},
	}
}

func repairCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "repair",
		Summary: "Recreate a faction's missing rooms",
		Description: `Retry the platform side of a faction: finish a pending rename and
create any role room, space, or channel that is missing. Safe to run
on a healthy faction.`,
		Usage: "factionkeep repair <faction> [flags]",
		Flags: conn.flags("repair", nil),
		Run: func(args []string) error {
			name, err := factionArgument(args, "factionkeep repair <faction>")
			if err != nil {
				return err
			}
			var repaired schema.RepairResponse
			if err := conn.call(schema.AdminActionRepair, schema.FactionRequest{Name: name}, &repaired); err != nil {
				return err
			}
			if conn.json {
				return cli.WriteJSON(stdout, repaired)
			}
			fmt.Fprintf(stdout, "Rooms for %s are in place:\n", name)
			fmt.Fprintf(stdout, "  role:    %s\n", repaired.Role)
			fmt.Fprintf(stdout, "  space:   %s\n", repaired.Space)
			fmt.Fprintf(stdout, "  channel: %s\n", repaired.Channel)
			return nil
		},
	}
}

func auditCommand(stdout io.Writer) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "audit",
		Summary: "Compare a faction's members with its room access",
		Usage:   "factionkeep audit <faction> [flags]",
		Flags:   conn.flags("audit", nil),
		Run: func(args []string) error {
			name, err := factionArgument(args, "factionkeep audit <faction>")
			if err != nil {
				return err
			}
			var audit schema.AuditResponse
			if err := conn.call(schema.AdminActionAudit, schema.FactionRequest{Name: name}, &audit); err != nil {
				return err
			}
			report := audit.Report
			if conn.json {
				return cli.WriteJSON(stdout, report)
			}
			if report.Consistent() {
				fmt.Fprintf(stdout, "%s is consistent.\n", report.Faction)
				return nil
			}
			fmt.Fprintf(stdout, "%s has drifted.\n", report.Faction)
			if len(report.MissingToken) > 0 {
				fmt.Fprintln(stdout, "\nMembers without access:")
				for _, user := range report.MissingToken {
					fmt.Fprintf(stdout, "  %s\n", user)
				}
			}
			if len(report.StrayToken) > 0 {
				fmt.Fprintln(stdout, "\nAccess without membership:")
				for _, user := range report.StrayToken {
					fmt.Fprintf(stdout, "  %s\n", user)
				}
			}
			return &cli.CommandError{Category: cli.CategoryConflict, Err: fmt.Errorf("audit found drift in %s", report.Faction)}
		},
	}
}

// factionArgument joins the positional args into one faction name so
// that unquoted multi-word names work.
func factionArgument(args []string, usage string) (string, error) {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return "", cli.Validation("faction name is required\n\nUsage: %s", usage)
	}
	return name, nil
}
