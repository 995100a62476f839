// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package hoist

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/store"
	"github.com/sv-project/sv/lib/sverr"
)

// ConflictsCommand groups the conflict log subcommands.
func ConflictsCommand() *cli.Command {
	return &cli.Command{
		Name:    "conflicts",
		Summary: "Inspect and resolve recorded replay conflicts",
		Usage:   "sv conflicts <subcommand>",
		Subcommands: []*cli.Command{
			conflictsLsCommand(),
			conflictsResolveCommand(),
		},
	}
}

type conflictsLsParams struct {
	cli.JSONOutput
	All bool `flag:"all" desc:"include resolved conflicts"`
}

type conflictsReport struct {
	Conflicts []store.ConflictRecord `json:"conflicts"`
}

func conflictsLsCommand() *cli.Command {
	var params conflictsLsParams
	return &cli.Command{
		Name:    "ls",
		Summary: "List recorded conflicts",
		Usage:   "sv conflicts ls [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("conflicts ls", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			var records []store.ConflictRecord
			if params.All {
				records, err = env.Storage.LoadConflicts()
			} else {
				records, err = env.Storage.UnresolvedConflicts()
			}
			if err != nil {
				return err
			}

			header := fmt.Sprintf("sv conflicts: %d record(s)", len(records))
			if len(records) == 0 {
				header = "sv conflicts: none recorded"
			}
			out := cli.NewOutput("conflicts ls", header, conflictsReport{Conflicts: records})
			for _, record := range records {
				line := fmt.Sprintf("%s %s", shortOID(record.CommitID), strings.Join(record.Files, ", "))
				if record.Resolved() {
					line += " (resolved)"
				}
				out.Detail(line)
			}
			if len(records) > 0 && !params.All {
				out.NextStep("sv conflicts resolve <commit> once fixed")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type conflictsResolveParams struct {
	cli.JSONOutput
}

func conflictsResolveCommand() *cli.Command {
	var params conflictsResolveParams
	return &cli.Command{
		Name:    "resolve",
		Summary: "Mark a commit's conflicts resolved",
		Usage:   "sv conflicts resolve <commit>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("conflicts resolve", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv conflicts resolve <commit>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			if err := env.Storage.MarkConflictResolved(args[0]); err != nil {
				return err
			}
			out := cli.NewOutput("conflicts resolve", "sv conflicts: resolved "+shortOID(args[0]),
				map[string]string{"commit_id": args[0]}).
				NextStep("sv hoist continue to resume an interrupted hoist")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}
