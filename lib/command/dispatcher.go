// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/factionkeep/factionkeep/lib/authorization"
	"github.com/factionkeep/factionkeep/lib/economy"
	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/provision"
	"github.com/factionkeep/factionkeep/lib/ref"
	"github.com/factionkeep/factionkeep/lib/reply"
	"github.com/factionkeep/factionkeep/lib/schema"
	"github.com/factionkeep/factionkeep/messaging"
)

// DefaultPrefix starts every command message.
const DefaultPrefix = "!faction"

// Session is the Matrix surface the dispatcher needs.
type Session interface {
	UserID() ref.UserID
	SendMessage(ctx context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error)
	ResolveAlias(ctx context.Context, alias ref.RoomAlias) (ref.RoomID, error)
}

// Registry is implemented by *registry.Registry.
type Registry interface {
	Create(ctx context.Context, name string) (faction.Faction, error)
	Delete(ctx context.Context, name string) (int, error)
	Rename(ctx context.Context, oldName, newName string) (faction.Faction, error)
	Repair(ctx context.Context, name string) (provision.Handle, error)
	SetLeader(ctx context.Context, name string, user ref.UserID) error
	Info(ctx context.Context, name string) (faction.Info, error)
	Members(ctx context.Context, name string) ([]ref.UserID, error)
}

// Membership is implemented by *membership.Manager.
type Membership interface {
	Join(ctx context.Context, user ref.UserID, name string) (string, error)
	Leave(ctx context.Context, user ref.UserID) (string, error)
	AdminAssign(ctx context.Context, target ref.UserID, name string) (string, error)
	AdminRemove(ctx context.Context, target ref.UserID) (string, error)
	Audit(ctx context.Context, name string) (faction.AuditReport, error)
}

// Economy is implemented by *economy.Economy.
type Economy interface {
	Checkin(ctx context.Context, user ref.UserID) (economy.CheckinResult, error)
	WeeklyReset(ctx context.Context) (int, error)
	Leaderboard(ctx context.Context, limit int) ([]faction.Faction, error)
}

// Conflicts is implemented by *conflict.Graph.
type Conflicts interface {
	Declare(ctx context.Context, source, target string) (faction.Conflict, error)
	End(ctx context.Context, a, b string) error
	List(ctx context.Context) ([]faction.Conflict, error)
}

// Gate is implemented by *authorization.Gate.
type Gate interface {
	Authorize(ctx context.Context, actor authorization.Actor, op authorization.Operation) (authorization.Result, error)
	AddTrustedGroup(ctx context.Context, actor authorization.Actor, group ref.RoomID) (faction.TrustedGroup, error)
	RemoveTrustedGroup(ctx context.Context, actor authorization.Actor, group ref.RoomID) error
	TrustedGroups(ctx context.Context, workspace ref.RoomID) ([]faction.TrustedGroup, error)
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Session    Session
	Registry   Registry
	Membership Membership
	Economy    Economy
	Conflicts  Conflicts
	Gate       Gate

	// Prefix starts command messages. Defaults to DefaultPrefix.
	Prefix string

	// Timeout bounds the store and platform calls of one command. The
	// reply is sent after it, so a timed-out command still gets one.
	// Zero means no limit.
	Timeout time.Duration

	Logger *slog.Logger
}

// Dispatcher turns command messages into operations and replies. It is
// safe for concurrent use; the service calls Handle from one goroutine
// per message.
type Dispatcher struct {
	session    Session
	registry   Registry
	membership Membership
	economy    Economy
	conflicts  Conflicts
	gate       Gate
	prefix     string
	timeout    time.Duration
	logger     *slog.Logger

	commands map[string]*spec
	order    []*spec
}

// New creates a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	var missing []error
	for _, required := range []struct {
		name string
		set  bool
	}{
		{"Session", config.Session != nil},
		{"Registry", config.Registry != nil},
		{"Membership", config.Membership != nil},
		{"Economy", config.Economy != nil},
		{"Conflicts", config.Conflicts != nil},
		{"Gate", config.Gate != nil},
	} {
		if !required.set {
			missing = append(missing, fmt.Errorf("command: %s is required", required.name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		session:    config.Session,
		registry:   config.Registry,
		membership: config.Membership,
		economy:    config.Economy,
		conflicts:  config.Conflicts,
		gate:       config.Gate,
		prefix:     prefix,
		timeout:    config.Timeout,
		logger:     logger,
		commands:   make(map[string]*spec),
	}
	for _, entry := range d.table() {
		d.order = append(d.order, entry)
		for _, name := range entry.names {
			d.commands[name] = entry
		}
	}
	return d, nil
}

// request is one command in flight.
type request struct {
	id      string
	actor   authorization.Actor
	event   messaging.Event
	command string
	args    []string
}

// Handle processes one timeline event from room. Events that are not
// command messages, and the bot's own messages, are ignored. For a
// command it sends exactly one reply; the returned error reports only
// a failure to send that reply.
func (d *Dispatcher) Handle(ctx context.Context, room ref.RoomID, event messaging.Event) error {
	if event.Type != schema.MatrixEventTypeMessage || event.Sender == d.session.UserID() || event.Sender.IsZero() {
		return nil
	}
	var content messaging.MessageContent
	if err := event.DecodeContent(&content); err != nil || content.MsgType != "m.text" {
		return nil
	}
	invocation, ok, parseErr := Parse(d.prefix, content.Body)
	if !ok {
		return nil
	}

	started := time.Now()
	req := &request{
		id:      uuid.NewString(),
		actor:   authorization.Actor{User: event.Sender, Workspace: room},
		event:   event,
		command: invocation.Name,
		args:    invocation.Args,
	}
	logger := d.logger.With(
		"command_id", req.id,
		"command", req.command,
		"sender", event.Sender,
		"room", room,
	)

	var (
		text string
		err  error
	)
	if parseErr != nil {
		err = &usageError{err: parseErr}
	} else {
		text, err = d.execute(ctx, req)
	}
	outcome := "ok"
	if err != nil {
		outcome = d.outcome(err)
		text = d.describe(req, err)
		if outcome == "internal" || outcome == "external_unavailable" || outcome == "partial" {
			logger.Error("command failed", "outcome", outcome, "error", err)
		} else {
			logger.Info("command rejected", "outcome", outcome, "error", err)
		}
	}

	// The reply context outlives the command timeout so a command that
	// ran out of time still gets its one reply.
	if _, sendErr := d.session.SendMessage(context.WithoutCancel(ctx), room, reply.To(event.EventID, event.Sender, text)); sendErr != nil {
		logger.Error("sending reply failed", "outcome", outcome, "error", sendErr)
		return fmt.Errorf("command %s: sending reply: %w", req.id, sendErr)
	}
	logger.Info("command handled", "outcome", outcome, "duration", time.Since(started))
	return nil
}

// execute authorizes and runs req, returning the reply markdown.
func (d *Dispatcher) execute(ctx context.Context, req *request) (string, error) {
	entry, found := d.commands[req.command]
	if !found {
		return "", errUnknownCommand
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if entry.op.Tier != authorization.Public {
		if _, err := d.gate.Authorize(ctx, req.actor, entry.op); err != nil {
			return "", err
		}
	}
	text, err := entry.run(ctx, req)
	var usage *usageError
	if errors.As(err, &usage) {
		usage.usage = entry.usage
	}
	return text, err
}

func (d *Dispatcher) outcome(err error) string {
	var usage *usageError
	switch {
	case errors.As(err, &usage):
		return "usage"
	case errors.Is(err, errUnknownCommand):
		return "unknown_command"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return faction.Code(err)
	}
}
