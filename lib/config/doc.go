// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads factionkeep configuration.
//
// Configuration comes from one YAML file named by the --config flag or
// the FACTIONKEEP_CONFIG environment variable. There is no discovery
// of ~/.config or /etc.
//
// The file may carry development, staging and production sections.
// The section matching [Config].Environment is decoded over the base
// values, so it only needs the keys that differ. After overrides,
// ${VAR} and ${VAR:-default} are expanded in path fields.
//
// Two values come from the process environment instead of the file:
// FACTIONKEEP_ENV selects the environment, and FACTIONKEEP_LOG_LEVEL
// overrides log.level. Matrix credentials never live in the YAML file;
// see [LoadCredentials].
package config
