// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the sv command tree.
package commands

import (
	"github.com/sv-project/sv/cmd/sv/cli"
	commitcmd "github.com/sv-project/sv/cmd/sv/commit"
	"github.com/sv-project/sv/cmd/sv/core"
	hoistcmd "github.com/sv-project/sv/cmd/sv/hoist"
	leasecmd "github.com/sv-project/sv/cmd/sv/lease"
	oplogcmd "github.com/sv-project/sv/cmd/sv/oplog"
	protectcmd "github.com/sv-project/sv/cmd/sv/protect"
	riskcmd "github.com/sv-project/sv/cmd/sv/risk"
	workspacecmd "github.com/sv-project/sv/cmd/sv/workspace"
)

// Root builds the top-level sv command.
func Root() *cli.Command {
	return &cli.Command{
		Name:        "sv",
		Description: "sv coordinates multiple agents working in one git repository:\nworkspaces, leases, protected paths, and commit integration.",
		Subcommands: []*cli.Command{
			core.InitCommand(),
			core.StatusCommand(),
			core.ActorCommand(),
			workspacecmd.WsCommand(),
			leasecmd.TakeCommand(),
			leasecmd.ReleaseCommand(),
			leasecmd.LeaseCommand(),
			protectcmd.Command(),
			commitcmd.Command(),
			riskcmd.Command(),
			oplogcmd.OpCommand(),
			oplogcmd.UndoCommand(),
			workspacecmd.OntoCommand(),
			hoistcmd.Command(),
			hoistcmd.ConflictsCommand(),
		},
	}
}
