// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/merge"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
	workspacelib "github.com/sv-project/sv/lib/workspace"
)

type ontoParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Strategy  string `flag:"strategy" desc:"how to integrate: rebase or merge" default:"rebase"`
	Base      string `flag:"base" desc:"rebase boundary (defaults to this workspace's base)"`
	Preflight bool   `flag:"preflight" desc:"simulate and report conflicts without touching the tree"`
}

type ontoReport struct {
	Target    string   `json:"target"`
	Strategy  string   `json:"strategy"`
	Preflight bool     `json:"preflight,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
	HeadOld   string   `json:"head_old,omitempty"`
	HeadNew   string   `json:"head_new,omitempty"`
}

// OntoCommand rebases or merges the current workspace onto another.
func OntoCommand() *cli.Command {
	var params ontoParams
	return &cli.Command{
		Name:    "onto",
		Summary: "Rebase or merge this workspace onto another",
		Usage:   "sv onto <workspace> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("onto", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv onto <workspace>")
			}
			if params.Strategy != "rebase" && params.Strategy != "merge" {
				return sverr.Validationf("unknown strategy %q: want rebase or merge", params.Strategy)
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}
			return runOnto(ctx, env, args[0], &params)
		},
	}
}

func runOnto(ctx context.Context, env *cli.Env, targetName string, params *ontoParams) error {
	reg, err := env.Storage.LoadRegistry()
	if err != nil {
		return err
	}
	target := reg.Find(targetName)
	if target == nil {
		return sverr.Validationf("workspace %q not found", targetName)
	}

	mgr := workspacelib.NewManager(env.Repo, env.Storage)
	current, err := mgr.EnsureCurrent(ctx, env.Storage.WorkTree(), env.Actor)
	if err != nil {
		return err
	}
	if current.Name == target.Name {
		return sverr.Validationf("cannot move workspace %q onto itself", target.Name)
	}

	base := params.Base
	if base == "" {
		base = current.Base
	}

	if params.Preflight {
		// Rebasing replays our commits past base, so base bounds the
		// simulation; a merge joins full histories from their fork
		// point.
		simBase := base
		if params.Strategy == "merge" {
			simBase = ""
		}
		sim, err := merge.Simulate(ctx, env.Repo, current.Branch, target.Branch, simBase)
		if err != nil {
			return err
		}
		report := ontoReport{
			Target:    target.Name,
			Strategy:  params.Strategy,
			Preflight: true,
			Conflicts: merge.Summarize(sim.Conflicts),
		}
		header := fmt.Sprintf("sv onto: %s onto %s would be clean", current.Name, target.Name)
		if !sim.Clean() {
			header = fmt.Sprintf("sv onto: %s onto %s predicts %d conflict(s)", current.Name, target.Name, len(sim.Conflicts))
		}
		out := cli.NewOutput("onto", header, report)
		for _, line := range report.Conflicts {
			out.Detail(line)
		}
		if sim.Clean() {
			out.NextStep(fmt.Sprintf("sv onto %s --strategy %s", target.Name, params.Strategy))
		} else {
			out.NextStep("resolve the listed paths first, or pick a different target")
		}
		return out.Emit(params.OutputJSON, params.Quiet)
	}

	headBefore, err := env.Repo.Head(ctx)
	if err != nil {
		return err
	}
	switch params.Strategy {
	case "rebase":
		_, err = env.Repo.Run(ctx, "rebase", "--onto", target.Branch, base)
	case "merge":
		_, err = env.Repo.Run(ctx, "merge", "--no-edit", target.Branch)
	}
	if err != nil {
		return sverr.Wrap(sverr.Conflict, err, "%s onto %s failed", params.Strategy, target.Name)
	}
	headAfter, err := env.Repo.Head(ctx)
	if err != nil {
		return err
	}

	record := oplog.NewRecord(env.Storage.Clock(), fmt.Sprintf("sv onto %s --strategy %s", target.Name, params.Strategy), env.Actor)
	record.AffectedRefs = []string{current.Branch}
	record.AffectedWorkspaces = []string{current.Name, target.Name}
	record.UndoData = &oplog.UndoData{RefUpdates: []oplog.RefUpdate{{
		Name: "refs/heads/" + current.Branch,
		Old:  headBefore.OID,
		New:  headAfter.OID,
	}}}
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	log.Append(record) //nolint:errcheck

	report := ontoReport{
		Target:   target.Name,
		Strategy: params.Strategy,
		HeadOld:  headBefore.OID,
		HeadNew:  headAfter.OID,
	}
	out := cli.NewOutput("onto", fmt.Sprintf("sv onto: %s moved onto %s", current.Name, target.Name), report).
		Summaryf("strategy", "%s", params.Strategy).
		Summaryf("head", "%s -> %s", shortOID(headBefore.OID), shortOID(headAfter.OID)).
		NextStep("sv risk")
	return out.Emit(params.OutputJSON, params.Quiet)
}

func shortOID(oid string) string {
	if len(oid) > 8 {
		return oid[:8]
	}
	return oid
}
