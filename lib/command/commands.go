// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/factionkeep/factionkeep/lib/authorization"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/reply"
	"github.com/factionkeep/factionkeep/messaging"
)

// spec describes one command.
type spec struct {
	names   []string
	usage   string
	summary string
	op      authorization.Operation
	run     func(ctx context.Context, req *request) (string, error)
}

// leaderboardSize is how many factions the leaderboard command shows.
const leaderboardSize = 10

func privileged(name string) authorization.Operation {
	return authorization.Operation{Name: name, Tier: authorization.Privileged}
}

func public(name string) authorization.Operation {
	return authorization.Operation{Name: name, Tier: authorization.Public}
}

// table lists the commands in the order help shows them.
func (d *Dispatcher) table() []*spec {
	return []*spec{
		{names: []string{"join"}, usage: "join <faction>", summary: "join a faction", op: public("join"), run: d.join},
		{names: []string{"leave"}, usage: "leave", summary: "leave your faction", op: public("leave"), run: d.leave},
		{names: []string{"checkin"}, usage: "checkin", summary: "earn points for your faction, once a day", op: public("checkin"), run: d.checkin},
		{names: []string{"info"}, usage: "info <faction>", summary: "show points, leader and size", op: public("info"), run: d.info},
		{names: []string{"members"}, usage: "members <faction>", summary: "list members", op: public("members"), run: d.members},
		{names: []string{"list"}, usage: "list", summary: "list every faction by points", op: public("list"), run: d.list},
		{names: []string{"leaderboard", "top"}, usage: "leaderboard", summary: "show the top factions", op: public("leaderboard"), run: d.leaderboard},
		{names: []string{"wars"}, usage: "wars", summary: "list active conflicts", op: public("wars"), run: d.wars},
		{names: []string{"trusted"}, usage: "trusted", summary: "list groups trusted in this room", op: authorization.OpTrusted, run: d.trusted},
		{names: []string{"help"}, usage: "help", summary: "show this message", op: public("help"), run: d.help},

		{names: []string{"create"}, usage: "create <faction>", summary: "create a faction and its rooms", op: privileged("create"), run: d.create},
		{names: []string{"delete"}, usage: "delete <faction>", summary: "delete a faction and its rooms", op: privileged("delete"), run: d.delete},
		{names: []string{"rename"}, usage: `rename "<old>" "<new>"`, summary: "rename a faction", op: privileged("rename"), run: d.rename},
		{names: []string{"repair"}, usage: "repair <faction>", summary: "recreate missing rooms", op: privileged("repair"), run: d.repair},
		{names: []string{"leader"}, usage: "leader <faction> <@user>", summary: "appoint a member as leader", op: privileged("leader"), run: d.leader},
		{names: []string{"add"}, usage: "add <@user> <faction>", summary: "put a user in a faction", op: privileged("add"), run: d.add},
		{names: []string{"remove"}, usage: "remove <@user>", summary: "take a user out of their faction", op: privileged("remove"), run: d.remove},
		{names: []string{"audit"}, usage: "audit <faction>", summary: "compare members with room access", op: privileged("audit"), run: d.audit},
		{names: []string{"reset"}, usage: "reset", summary: "reset every faction's points to zero", op: privileged("reset"), run: d.reset},
		{names: []string{"war"}, usage: `war "<faction>" "<faction>"`, summary: "declare a conflict", op: privileged("war"), run: d.war},
		{names: []string{"peace"}, usage: `peace "<faction>" "<faction>"`, summary: "end a conflict", op: privileged("peace"), run: d.peace},

		{names: []string{"trust"}, usage: "trust <room>", summary: "let members of a room run privileged commands here", op: authorization.OpTrust, run: d.trust},
		{names: []string{"untrust"}, usage: "untrust <room>", summary: "withdraw that trust", op: authorization.OpUntrust, run: d.untrust},
	}
}

// Argument shapes.

func oneName(req *request) (string, error) {
	name := strings.Join(req.args, " ")
	if strings.TrimSpace(name) == "" {
		return "", &usageError{}
	}
	return name, nil
}

func twoNames(req *request) (string, string, error) {
	if len(req.args) != 2 {
		return "", "", &usageError{}
	}
	return req.args[0], req.args[1], nil
}

func noArgs(req *request) error {
	if len(req.args) != 0 {
		return &usageError{}
	}
	return nil
}

func parseUser(raw string) (ref.UserID, error) {
	user, err := ref.ParseUserID(raw)
	if err != nil {
		return ref.UserID{}, &usageError{err: err}
	}
	return user, nil
}

// room accepts a room ID or an alias.
func (d *Dispatcher) room(ctx context.Context, req *request) (ref.RoomID, error) {
	if len(req.args) != 1 {
		return ref.RoomID{}, &usageError{}
	}
	raw := req.args[0]
	if strings.HasPrefix(raw, "#") {
		alias, err := ref.ParseRoomAlias(raw)
		if err != nil {
			return ref.RoomID{}, &usageError{err: err}
		}
		roomID, err := d.session.ResolveAlias(ctx, alias)
		if messaging.IsNotFound(err) {
			return ref.RoomID{}, &usageError{err: fmt.Errorf("no room has the alias %s", alias)}
		}
		if err != nil {
			return ref.RoomID{}, fmt.Errorf("command: resolving %s: %w: %w", alias, faction.ErrExternalUnavailable, err)
		}
		return roomID, nil
	}
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		return ref.RoomID{}, &usageError{err: err}
	}
	return roomID, nil
}

func bold(name string) string {
	return "**" + reply.Escape(name) + "**"
}

func plural(count int, singular, pluralForm string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", count, pluralForm)
}

// Public commands.

func (d *Dispatcher) join(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	joined, err := d.membership.Join(ctx, req.actor.User, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Welcome to %s! You now have access to the faction's rooms.", bold(joined)), nil
}

func (d *Dispatcher) leave(ctx context.Context, req *request) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	left, err := d.membership.Leave(ctx, req.actor.User)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("You left %s.", bold(left)), nil
}

func (d *Dispatcher) checkin(ctx context.Context, req *request) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	result, err := d.economy.Checkin(ctx, req.actor.User)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Checked in for %s: +%d points, %d total.", bold(result.Faction), result.Credited, result.Total), nil
}

func (d *Dispatcher) info(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	info, err := d.registry.Info(ctx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\n\n- Points: %d\n- Leader: %s\n- Members: %d",
		bold(info.Name), info.Points, reply.Escape(info.LeaderDisplay()), info.MemberCount), nil
}

func (d *Dispatcher) members(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	info, err := d.registry.Info(ctx, name)
	if err != nil {
		return "", err
	}
	members, err := d.registry.Members(ctx, info.Name)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return fmt.Sprintf("%s has no members.", bold(info.Name)), nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s has %s:\n", bold(info.Name), plural(len(members), "member", "members"))
	for _, member := range members {
		fmt.Fprintf(&builder, "\n- %s", reply.Escape(member.String()))
	}
	return builder.String(), nil
}

func (d *Dispatcher) list(ctx context.Context, req *request) (string, error) {
	return d.standings(ctx, req, 0)
}

func (d *Dispatcher) leaderboard(ctx context.Context, req *request) (string, error) {
	return d.standings(ctx, req, leaderboardSize)
}

func (d *Dispatcher) standings(ctx context.Context, req *request, limit int) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	factions, err := d.economy.Leaderboard(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(factions) == 0 {
		return "There are no factions yet.", nil
	}
	var builder strings.Builder
	builder.WriteString("| # | Faction | Points | Leader |\n|---|---|---|---|")
	for i, record := range factions {
		fmt.Fprintf(&builder, "\n| %d | %s | %d | %s |", i+1, reply.Escape(record.Name), record.Points, reply.Escape(record.LeaderDisplay()))
	}
	return builder.String(), nil
}

func (d *Dispatcher) wars(ctx context.Context, req *request) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	conflicts, err := d.conflicts.List(ctx)
	if err != nil {
		return "", err
	}
	if len(conflicts) == 0 {
		return "No active conflicts.", nil
	}
	var builder strings.Builder
	builder.WriteString("Active conflicts:\n")
	for _, edge := range conflicts {
		fmt.Fprintf(&builder, "\n- %s vs %s, since %s", bold(edge.Source), bold(edge.Target), edge.DeclaredAt.UTC().Format("2006-01-02"))
	}
	return builder.String(), nil
}

func (d *Dispatcher) trusted(ctx context.Context, req *request) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	groups, err := d.gate.TrustedGroups(ctx, req.actor.Workspace)
	if err != nil {
		return "", err
	}
	if len(groups) == 0 {
		return "No groups are trusted in this room. Only administrators can run privileged commands.", nil
	}
	var builder strings.Builder
	builder.WriteString("Members of these rooms can run privileged commands here:\n")
	for _, group := range groups {
		fmt.Fprintf(&builder, "\n- %s", reply.Escape(group.Group.String()))
		if !group.AddedBy.IsZero() {
			fmt.Fprintf(&builder, " (added by %s)", reply.Escape(group.AddedBy.String()))
		}
	}
	return builder.String(), nil
}

func (d *Dispatcher) help(_ context.Context, _ *request) (string, error) {
	var builder strings.Builder
	builder.WriteString("Faction commands:\n")
	tier := authorization.Public
	for _, entry := range d.order {
		if entry.op.Tier != tier {
			tier = entry.op.Tier
			fmt.Fprintf(&builder, "\n%s:\n", strings.ToUpper(tier.String()[:1])+tier.String()[1:])
		}
		fmt.Fprintf(&builder, "\n- `%s %s`: %s", d.prefix, entry.usage, entry.summary)
	}
	return builder.String(), nil
}

// Privileged commands.

func (d *Dispatcher) create(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	record, err := d.registry.Create(ctx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created faction %s. Members can join with `%s join %s`.", bold(record.Name), d.prefix, record.Name), nil
}

func (d *Dispatcher) delete(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	info, err := d.registry.Info(ctx, name)
	if err != nil {
		return "", err
	}
	released, err := d.registry.Delete(ctx, info.Name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted faction %s. %s no longer affiliated.",
		bold(info.Name), plural(released, "member is", "members are")), nil
}

func (d *Dispatcher) rename(ctx context.Context, req *request) (string, error) {
	oldName, newName, err := twoNames(req)
	if err != nil {
		return "", err
	}
	renamed, err := d.registry.Rename(ctx, oldName, newName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Renamed %s to %s. Points, leader and members carried over.", bold(oldName), bold(renamed.Name)), nil
}

func (d *Dispatcher) repair(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	info, err := d.registry.Info(ctx, name)
	if err != nil {
		return "", err
	}
	if _, err := d.registry.Repair(ctx, info.Name); err != nil {
		return "", err
	}
	return fmt.Sprintf("Rooms for %s are in place.", bold(info.Name)), nil
}

func (d *Dispatcher) leader(ctx context.Context, req *request) (string, error) {
	if len(req.args) < 2 {
		return "", &usageError{}
	}
	last := len(req.args) - 1
	user, err := parseUser(req.args[last])
	if err != nil {
		return "", err
	}
	info, err := d.registry.Info(ctx, strings.Join(req.args[:last], " "))
	if err != nil {
		return "", err
	}
	if err := d.registry.SetLeader(ctx, info.Name, user); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s now leads %s.", reply.Escape(user.String()), bold(info.Name)), nil
}

func (d *Dispatcher) add(ctx context.Context, req *request) (string, error) {
	if len(req.args) < 2 {
		return "", &usageError{}
	}
	user, err := parseUser(req.args[0])
	if err != nil {
		return "", err
	}
	joined, err := d.membership.AdminAssign(ctx, user, strings.Join(req.args[1:], " "))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Added %s to %s.", reply.Escape(user.String()), bold(joined)), nil
}

func (d *Dispatcher) remove(ctx context.Context, req *request) (string, error) {
	if len(req.args) != 1 {
		return "", &usageError{}
	}
	user, err := parseUser(req.args[0])
	if err != nil {
		return "", err
	}
	left, err := d.membership.AdminRemove(ctx, user)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s from %s.", reply.Escape(user.String()), bold(left)), nil
}

func (d *Dispatcher) audit(ctx context.Context, req *request) (string, error) {
	name, err := oneName(req)
	if err != nil {
		return "", err
	}
	report, err := d.membership.Audit(ctx, name)
	if err != nil {
		return "", err
	}
	if report.Consistent() {
		return fmt.Sprintf("%s is consistent: every member has access and nobody else does.", bold(report.Faction)), nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "%s has drifted.", bold(report.Faction))
	if len(report.MissingToken) > 0 {
		builder.WriteString("\n\nMembers without access:\n")
		for _, user := range report.MissingToken {
			fmt.Fprintf(&builder, "\n- %s", reply.Escape(user.String()))
		}
	}
	if len(report.StrayToken) > 0 {
		builder.WriteString("\n\nAccess without membership:\n")
		for _, user := range report.StrayToken {
			fmt.Fprintf(&builder, "\n- %s", reply.Escape(user.String()))
		}
	}
	return builder.String(), nil
}

func (d *Dispatcher) reset(ctx context.Context, req *request) (string, error) {
	if err := noArgs(req); err != nil {
		return "", err
	}
	count, err := d.economy.WeeklyReset(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Points reset for %s.", plural(count, "faction", "factions")), nil
}

func (d *Dispatcher) war(ctx context.Context, req *request) (string, error) {
	source, target, err := twoNames(req)
	if err != nil {
		return "", err
	}
	edge, err := d.conflicts.Declare(ctx, source, target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s has declared war on %s.", bold(edge.Source), bold(edge.Target)), nil
}

func (d *Dispatcher) peace(ctx context.Context, req *request) (string, error) {
	a, b, err := twoNames(req)
	if err != nil {
		return "", err
	}
	if err := d.conflicts.End(ctx, a, b); err != nil {
		return "", err
	}
	return fmt.Sprintf("Peace between %s and %s.", bold(a), bold(b)), nil
}

// Administrator commands.

func (d *Dispatcher) trust(ctx context.Context, req *request) (string, error) {
	group, err := d.room(ctx, req)
	if err != nil {
		return "", err
	}
	if _, err := d.gate.AddTrustedGroup(ctx, req.actor, group); err != nil {
		return "", err
	}
	return fmt.Sprintf("Members of %s can now run privileged commands in this room.", reply.Escape(group.String())), nil
}

func (d *Dispatcher) untrust(ctx context.Context, req *request) (string, error) {
	group, err := d.room(ctx, req)
	if err != nil {
		return "", err
	}
	if err := d.gate.RemoveTrustedGroup(ctx, req.actor, group); err != nil {
		return "", err
	}
	return fmt.Sprintf("Members of %s are no longer trusted in this room.", reply.Escape(group.String())), nil
}
