// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
	"github.com/factionkeep/factionkeep/lib/version"
)

func versionCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintf(stdout, "factionkeep %s\n", version.Full())
			return nil
		},
	}
}
