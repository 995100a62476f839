// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package hoist implements the hoist command tree: replaying workspace
// commits onto an integration branch, and managing interrupted runs.
package hoist

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	hoistlib "github.com/sv-project/sv/lib/hoist"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
	workspacelib "github.com/sv-project/sv/lib/workspace"
)

// Command groups the hoist subcommands. A bare sv hoist runs the
// default replay, matching sv hoist run.
func Command() *cli.Command {
	run := runCommand()
	return &cli.Command{
		Name:        "hoist",
		Summary:     "Replay workspace commits onto an integration branch",
		Usage:       "sv hoist [run|status|continue|abort] [flags]",
		Flags:       run.Flags,
		Run:         run.Run,
		Subcommands: []*cli.Command{run, statusCommand(), continueCommand(), abortCommand()},
	}
}

type runParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Select             string   `flag:"select,s" desc:"workspace selector expression" default:"all"`
	Onto               string   `flag:"onto,d" desc:"destination ref (defaults to the configured base)"`
	Strategy           string   `flag:"strategy" desc:"integration strategy: stack, rebase, or merge" default:"stack"`
	Order              string   `flag:"order" desc:"replay order: workspace, time, or a comma list of names"`
	Prefer             []string `flag:"prefer" desc:"CHANGE_ID=COMMIT picks the survivor for a diverged Change-Id"`
	DryRun             bool     `flag:"dry-run" desc:"select and deduplicate without creating anything"`
	ContinueOnConflict bool     `flag:"continue-on-conflict" desc:"keep replaying past conflicted commits"`
	NoApply            bool     `flag:"no-apply" desc:"build the integration branch but leave the dest ref alone"`
}

func runCommand() *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Select, deduplicate, and replay commits",
		Usage:   "sv hoist run [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hoist run", &params)
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

			dest := params.Onto
			if dest == "" {
				dest = env.Config.Base
			}
			// Rebase and merge are accepted for forward compatibility;
			// replay is always the stacked cherry-pick.
			switch params.Strategy {
			case "stack", "rebase", "merge":
			default:
				return sverr.Validationf("invalid strategy %q: must be stack, rebase, or merge", params.Strategy)
			}
			prefer, err := parsePrefer(params.Prefer)
			if err != nil {
				return err
			}
			order, err := parseOrder(params.Order)
			if err != nil {
				return err
			}

			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			entries, err := mgr.ResolveSelector(ctx, params.Select)
			if err != nil {
				return err
			}
			refs := make([]hoistlib.WorkspaceRef, 0, len(entries))
			for _, entry := range entries {
				refs = append(refs, hoistlib.WorkspaceRef{Name: entry.Name, Branch: entry.Branch})
			}

			result, err := hoistlib.Run(ctx, env.Repo, env.Storage, refs, hoistlib.Options{
				DestRef:            dest,
				IntegrationPrefix:  env.Config.Hoist.IntegrationPrefix,
				Order:              order,
				Prefer:             prefer,
				ContinueOnConflict: params.ContinueOnConflict,
				NoApply:            params.NoApply,
				DryRun:             params.DryRun,
			})
			if err != nil {
				return err
			}
			if !params.DryRun {
				appendHoistOplog(env, "sv hoist run --onto "+dest, result)
			}
			return emitResult(result, params.JSONOutput)
		},
	}
}

type destParams struct {
	cli.JSONOutput
	Onto string `flag:"onto,d" desc:"destination ref (defaults to the configured base)"`
}

func statusCommand() *cli.Command {
	var params destParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show the state of an in-progress hoist",
		Usage:   "sv hoist status [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hoist status", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			dest := params.Onto
			if dest == "" {
				dest = env.Config.Base
			}
			state, err := hoistlib.LoadState(env.Storage, dest)
			if err != nil {
				return err
			}
			if state == nil {
				out := cli.NewOutput("hoist status", "sv hoist: no hoist in progress for "+dest, struct{}{}).
					NextStep("sv hoist run --onto " + dest)
				return out.Emit(params.OutputJSON, params.Quiet)
			}

			out := cli.NewOutput("hoist status", fmt.Sprintf("sv hoist: %s (%s)", state.HoistID, state.Status), state).
				Summaryf("dest", "%s", state.DestRef).
				Summaryf("integration", "%s", state.IntegrationRef)
			for _, c := range state.Commits {
				out.Detail(fmt.Sprintf("%s %s", shortOID(c.CommitID), c.Status))
			}
			if state.Status != hoistlib.StatusCompleted {
				out.NextStep("sv hoist continue --onto " + dest)
				out.NextStep("sv hoist abort --onto " + dest)
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func continueCommand() *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "continue",
		Summary: "Resume a hoist after resolving conflicts",
		Usage:   "sv hoist continue [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hoist continue", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			dest := params.Onto
			if dest == "" {
				dest = env.Config.Base
			}
			prefer, err := parsePrefer(params.Prefer)
			if err != nil {
				return err
			}
			result, err := hoistlib.Continue(ctx, env.Repo, env.Storage, dest, hoistlib.Options{
				DestRef:            dest,
				IntegrationPrefix:  env.Config.Hoist.IntegrationPrefix,
				Prefer:             prefer,
				ContinueOnConflict: params.ContinueOnConflict,
				NoApply:            params.NoApply,
			})
			if err != nil {
				return err
			}
			appendHoistOplog(env, "sv hoist continue --onto "+dest, result)
			return emitResult(result, params.JSONOutput)
		},
	}
}

func abortCommand() *cli.Command {
	var params destParams
	return &cli.Command{
		Name:    "abort",
		Summary: "Abandon an in-progress hoist",
		Usage:   "sv hoist abort [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("hoist abort", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			dest := params.Onto
			if dest == "" {
				dest = env.Config.Base
			}
			state, err := hoistlib.Abort(ctx, env.Repo, env.Storage, dest)
			if err != nil {
				return err
			}
			out := cli.NewOutput("hoist abort", "sv hoist abort: abandoned "+state.HoistID, state).
				Summaryf("dest", "%s", state.DestRef).
				NextStep("sv hoist run --onto " + dest)
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func emitResult(result *hoistlib.Result, jsonOut cli.JSONOutput) error {
	summary := replaySummary(result)
	header := fmt.Sprintf("sv hoist: applied %d commit(s) to %s", summary.applied, result.DestRef)
	switch {
	case result.DryRun:
		header = fmt.Sprintf("sv hoist: would replay %d commit(s) onto %s", len(result.Commits), result.DestRef)
	case len(result.Conflicts) > 0:
		header = fmt.Sprintf("sv hoist: stopped with %d conflict(s)", len(result.Conflicts))
	case len(result.ChangeIDIssues) > 0:
		header = fmt.Sprintf("sv hoist: %d Change-Id group(s) diverged; replayed the rest", len(result.ChangeIDIssues))
	case !result.Applied:
		header = fmt.Sprintf("sv hoist: built %s without touching %s", result.IntegrationRef, result.DestRef)
	}

	out := cli.NewOutput("hoist", header, result).
		Summaryf("hoist_id", "%s", result.HoistID).
		Summaryf("integration", "%s", result.IntegrationRef).
		Summaryf("applied", "%d", summary.applied).
		Summaryf("skipped", "%d", summary.skipped)
	for _, c := range result.Commits {
		out.Detail(fmt.Sprintf("%s %s (%s)", shortOID(c.CommitID), c.Status, c.Workspace))
	}
	for _, w := range result.Warnings {
		out.Warning(w)
	}
	for _, conflict := range result.Conflicts {
		out.Warning(fmt.Sprintf("conflict at %s: %s", shortOID(conflict.CommitID), strings.Join(conflict.Files, ", ")))
	}
	for _, issue := range result.ChangeIDIssues {
		out.Warning(fmt.Sprintf("Change-Id %s diverged across %s; pick one with --prefer",
			issue.ChangeID, strings.Join(shortAll(issue.Commits), ", ")))
	}
	if len(result.Conflicts) > 0 {
		out.NextStep("resolve, then sv hoist continue --onto " + result.DestRef)
		out.NextStep("or sv hoist abort --onto " + result.DestRef)
	}
	if len(result.ChangeIDIssues) > 0 {
		out.NextStep("rerun with --prefer <change-id>=<commit> to pick survivors")
	}
	return out.Emit(jsonOut.OutputJSON, jsonOut.Quiet)
}

type counts struct {
	applied int
	skipped int
}

func replaySummary(result *hoistlib.Result) counts {
	var c counts
	for _, commit := range result.Commits {
		switch commit.Status {
		case hoistlib.CommitApplied:
			c.applied++
		case hoistlib.CommitSkipped:
			c.skipped++
		}
	}
	return c
}

// parsePrefer turns CHANGE_ID=COMMIT pairs into the survivor map.
func parsePrefer(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	prefer := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		changeID, commit, found := strings.Cut(pair, "=")
		if !found || changeID == "" || commit == "" {
			return nil, sverr.Validationf("invalid --prefer %q: want CHANGE_ID=COMMIT", pair)
		}
		prefer[changeID] = commit
	}
	return prefer, nil
}

// parseOrder maps the flag to an order mode: empty or a known keyword
// selects that strategy, anything else is an explicit workspace list.
func parseOrder(raw string) (hoistlib.OrderMode, error) {
	switch raw {
	case "", "workspace":
		return hoistlib.OrderMode{Kind: "workspace"}, nil
	case "time":
		return hoistlib.OrderMode{Kind: "time"}, nil
	}
	names := strings.Split(raw, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
		if names[i] == "" {
			return hoistlib.OrderMode{}, sverr.Validationf("invalid --order %q", raw)
		}
	}
	return hoistlib.OrderMode{Kind: "explicit", Explicit: names}, nil
}

func appendHoistOplog(env *cli.Env, command string, result *hoistlib.Result) {
	record := oplog.NewRecord(env.Storage.Clock(), command, env.Actor)
	record.AffectedRefs = []string{result.DestRef, result.IntegrationRef}
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	log.Append(record) //nolint:errcheck
}

func shortOID(oid string) string {
	if len(oid) > 8 {
		return oid[:8]
	}
	return oid
}

func shortAll(oids []string) []string {
	out := make([]string, len(oids))
	for i, oid := range oids {
		out[i] = shortOID(oid)
	}
	return out
}
