// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package oplog implements the operation log commands: browsing past
// operations and undoing them.
package oplog

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	oploglib "github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
	"github.com/sv-project/sv/lib/undo"
)

// OpCommand groups the op subcommands.
func OpCommand() *cli.Command {
	return &cli.Command{
		Name:    "op",
		Summary: "Browse the operation log",
		Usage:   "sv op <subcommand>",
		Subcommands: []*cli.Command{
			logCommand(),
			showCommand(),
		},
	}
}

type logParams struct {
	cli.JSONOutput
	Limit     int    `flag:"limit" desc:"maximum records to show" default:"20"`
	Actor     string `flag:"actor" desc:"only operations by this actor"`
	Operation string `flag:"operation" desc:"only operations whose command contains this"`
	Since     string `flag:"since" desc:"only operations at or after this RFC 3339 time"`
	Until     string `flag:"until" desc:"only operations at or before this RFC 3339 time"`
}

type logReport struct {
	Records []oploglib.Record `json:"records"`
	Total   int               `json:"total"`
}

func logCommand() *cli.Command {
	var params logParams
	return &cli.Command{
		Name:    "log",
		Summary: "List recorded operations, newest first",
		Usage:   "sv op log [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("op log", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			filter := oploglib.Filter{Actor: params.Actor, Operation: params.Operation}
			if filter.Since, err = parseTimeFlag("since", params.Since); err != nil {
				return err
			}
			if filter.Until, err = parseTimeFlag("until", params.Until); err != nil {
				return err
			}

			log := oploglib.New(env.Storage.OplogDir(), env.Storage.Clock())
			records, err := log.ReadFiltered(filter, params.Limit)
			if err != nil {
				return err
			}

			header := fmt.Sprintf("sv op log: %d operation(s)", len(records))
			if len(records) == 0 {
				header = "sv op log: no operations recorded"
			}
			out := cli.NewOutput("op log", header, logReport{Records: records, Total: len(records)})
			for i := range records {
				out.Detail(oploglib.FormatRecord(&records[i]))
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type showParams struct {
	cli.JSONOutput
}

func showCommand() *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one operation by id or prefix",
		Usage:   "sv op show <op-id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("op show", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv op show <op-id>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			log := oploglib.New(env.Storage.OplogDir(), env.Storage.Clock())
			record, err := log.Find(args[0])
			if err != nil {
				return err
			}

			out := cli.NewOutput("op show", "sv op: "+record.OpID, record).
				Summaryf("command", "%s", record.Command).
				Summaryf("actor", "%s", record.Actor).
				Summaryf("time", "%s", record.Timestamp.UTC().Format(time.RFC3339)).
				Summaryf("outcome", "%s", record.Outcome.Status)
			for _, ref := range record.AffectedRefs {
				out.Detail("ref " + ref)
			}
			for _, ws := range record.AffectedWorkspaces {
				out.Detail("workspace " + ws)
			}
			if record.UndoData != nil {
				out.NextStep("sv undo --op " + record.OpID)
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type undoParams struct {
	cli.JSONOutput
	cli.ActorFlag
	OpID         string `flag:"op" desc:"operation to undo (defaults to the most recent)"`
	KeepWorktree bool   `flag:"keep-worktree" desc:"leave created directories in place"`
}

// UndoCommand reverses a recorded operation.
func UndoCommand() *cli.Command {
	var params undoParams
	return &cli.Command{
		Name:    "undo",
		Summary: "Reverse a recorded operation",
		Usage:   "sv undo [--op <op-id>] [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("undo", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}
			summary, err := undo.Undo(ctx, env.Storage, env.Repo, undo.Options{
				OpID:         params.OpID,
				KeepWorktree: params.KeepWorktree,
			})
			if err != nil {
				return err
			}

			// Undo is not itself an operation: it reverses a record
			// without appending one, so the log never accumulates
			// undo-of-undo chains.
			out := cli.NewOutput("undo", "sv undo: reversed "+summary.OpID, summary).
				Summaryf("command", "%s", summary.Command).
				Summaryf("restored refs", "%d", len(summary.RestoredRefs)).
				Summaryf("reverted leases", "%d", len(summary.RevertedLeases))
			for _, ref := range summary.RestoredRefs {
				out.Detail("restored " + ref)
			}
			for _, path := range summary.RemovedPaths {
				out.Detail("removed " + path)
			}
			for _, path := range summary.SkippedPaths {
				out.Warning("kept " + path)
			}
			out.NextStep("sv op log")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, sverr.Validationf("invalid --%s %q: want RFC 3339, like 2026-03-14T09:00:00Z", name, value)
	}
	return t, nil
}
