// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the factionkeep
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//	go build -ldflags "-X github.com/factionkeep/factionkeep/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them the commit is read from the VCS stamp the go command
// embeds, and the version defaults to "0.1.0-dev".
package version
