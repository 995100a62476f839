// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Command sv coordinates multiple agents sharing one git repository.
package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/cmd/sv/commands"
	"github.com/sv-project/sv/lib/sverr"
)

func main() {
	args := os.Args[1:]
	err := commands.Root().Execute(args)
	if err == nil {
		return
	}

	if slices.Contains(args, "--json") {
		cli.WriteJSONError(commandName(args), err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(sverr.ExitCodeOf(err))
}

// commandName recovers the subcommand path for the error envelope.
func commandName(args []string) string {
	var parts []string
	for _, arg := range args {
		if len(arg) > 0 && arg[0] == '-' {
			break
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
