// Copyright 2026 The Factionkeep Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/factionkeep/factionkeep/cmd/factionkeep/cli"
)

func main() {
	if err := Root(os.Stdout).Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.Categorize(err).ExitCode())
	}
}
