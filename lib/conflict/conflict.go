// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package conflict keeps the graph of active conflicts between
// factions. An edge is stored the way it was declared, but at most one
// active edge exists per unordered pair: A vs B blocks B vs A until it
// ends.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/factionkeep/factionkeep/lib/faction"
	"github.com/factionkeep/factionkeep/lib/factionstore"
)

// Config holds the graph's collaborators.
type Config struct {
	Store  *factionstore.Store
	Logger *slog.Logger
}

// Graph is safe for concurrent use; the store's partial unique index
// decides between racing declarations.
type Graph struct {
	store  *factionstore.Store
	logger *slog.Logger
}

// New creates a Graph.
func New(config Config) (*Graph, error) {
	if config.Store == nil {
		return nil, errors.New("conflict: Store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{store: config.Store, logger: logger}, nil
}

// Declare records source declaring a conflict on target. Names resolve
// case-insensitively to the stored factions.
func (g *Graph) Declare(ctx context.Context, rawSource, rawTarget string) (faction.Conflict, error) {
	source, target, err := g.pair(ctx, rawSource, rawTarget)
	if err != nil {
		return faction.Conflict{}, err
	}
	edge, err := g.store.DeclareConflict(ctx, source, target)
	if err != nil {
		return faction.Conflict{}, err
	}
	g.logger.Info("conflict declared", "source", source, "target", target, "id", edge.ID)
	return edge, nil
}

// End deactivates the active conflict between a and b, in whichever
// order it was declared.
func (g *Graph) End(ctx context.Context, rawA, rawB string) error {
	a, b, err := g.pair(ctx, rawA, rawB)
	if err != nil {
		return err
	}
	if err := g.store.EndConflict(ctx, a, b); err != nil {
		return err
	}
	g.logger.Info("conflict ended", "factions", []string{a, b})
	return nil
}

// List returns active conflicts in declaration order.
func (g *Graph) List(ctx context.Context) ([]faction.Conflict, error) {
	return g.store.ActiveConflicts(ctx)
}

// pair resolves both names. Naming the same faction twice is
// ErrSelfConflict even when the faction does not exist.
func (g *Graph) pair(ctx context.Context, rawA, rawB string) (string, string, error) {
	nameA, err := faction.ValidateName(rawA)
	if err != nil {
		return "", "", err
	}
	nameB, err := faction.ValidateName(rawB)
	if err != nil {
		return "", "", err
	}
	if faction.Slug(nameA) == faction.Slug(nameB) {
		return "", "", fmt.Errorf("conflict: %q: %w", nameA, faction.ErrSelfConflict)
	}
	a, err := g.store.ResolveFaction(ctx, nameA)
	if err != nil {
		return "", "", err
	}
	b, err := g.store.ResolveFaction(ctx, nameB)
	if err != nil {
		return "", "", err
	}
	return a.Name, b.Name, nil
}
