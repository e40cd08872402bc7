// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time source so that day-boundary and
// schedule logic (check-in days, the weekly reset, sync backoff) can be
// tested deterministically. Production code uses [Real]; tests use
// [Fake] and move time with [FakeClock.Advance].
package clock

import "time"

// Clock is the subset of the time package factionkeep depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has
	// elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
