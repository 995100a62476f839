// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package risk implements the cross-workspace overlap report.
package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/merge"
	risklib "github.com/sv-project/sv/lib/risk"
	"github.com/sv-project/sv/lib/sverr"
)

type riskParams struct {
	cli.JSONOutput
	Base     string `flag:"base" desc:"base ref for comparisons (defaults to the configured base)"`
	Simulate bool   `flag:"simulate" desc:"also merge each workspace pair virtually"`
}

// Command builds the sv risk command.
func Command() *cli.Command {
	var params riskParams
	return &cli.Command{
		Name:    "risk",
		Summary: "Report paths touched by more than one workspace",
		Usage:   "sv risk [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("risk", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}
			base := params.Base
			if base == "" {
				base = env.Config.Base
			}
			report, err := risklib.Compute(ctx, env.Repo, env.Storage, base)
			if err != nil {
				return err
			}
			if params.Simulate {
				risklib.SimulatePairs(ctx, env.Repo, report)
			}

			header := fmt.Sprintf("sv risk: %d overlap(s) across %d workspace(s)",
				len(report.Overlaps), len(report.Workspaces))
			if len(report.Overlaps) == 0 {
				header = fmt.Sprintf("sv risk: no overlaps across %d workspace(s)", len(report.Workspaces))
			}
			out := cli.NewOutput("risk", header, report).
				Summaryf("base", "%s", report.BaseRef)
			for _, overlap := range report.Overlaps {
				out.Detail(fmt.Sprintf("%s [%s] touched by %s",
					overlap.Path, overlap.Severity, strings.Join(overlap.Workspaces, ", ")))
				for _, s := range overlap.Suggestions {
					if s.Command != "" {
						out.NextStep(s.Command)
					}
				}
			}
			for _, pair := range report.Simulated {
				out.Detail(fmt.Sprintf("merge %s would conflict: %s",
					strings.Join(pair.Workspaces, " + "), strings.Join(merge.Summarize(pair.Conflicts), ", ")))
			}
			for _, w := range report.Warnings {
				out.Warning(w)
			}
			if len(report.Overlaps) > 0 {
				out.NextStep("sv take <pathspec> --strength strong to claim contested paths")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}
