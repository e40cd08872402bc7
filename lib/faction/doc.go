// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package faction holds the domain vocabulary shared by every
// factionkeep component: the record types, name rules, and the error
// kinds callers match with errors.Is.
//
// A faction name is the user-visible identity. Its slug is the stable
// ASCII form used in Matrix room aliases; two names with the same slug
// are the same faction as far as uniqueness is concerned.
package faction
