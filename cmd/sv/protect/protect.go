// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package protect implements the protected-path commands: inspecting
// rule status, adding and removing rules, and workspace-local opt-outs.
package protect

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"
	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/config"
	protectlib "github.com/sv-project/sv/lib/protect"
	"github.com/sv-project/sv/lib/sverr"
)

// Command groups the protect subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "protect",
		Summary: "Manage protected path rules",
		Usage:   "sv protect <subcommand>",
		Subcommands: []*cli.Command{
			statusCommand(),
			addCommand(),
			offCommand(),
			rmCommand(),
		},
	}
}

type statusParams struct {
	cli.JSONOutput
}

type statusReport struct {
	Mode             string                  `json:"mode"`
	Rules            []protectlib.RuleStatus `json:"rules"`
	DisabledPatterns []string                `json:"disabled_patterns"`
	StagedMatches    int                     `json:"staged_matches"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show protect rules and the files they match",
		Usage:   "sv protect status [path]...",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("protect status", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			override, err := env.ProtectOverride()
			if err != nil {
				return err
			}
			// Explicit paths check those instead of the staged set.
			paths := args
			fileLabel := "path: "
			if len(paths) == 0 {
				staged, stagedErr := env.Repo.StagedFiles(ctx)
				if stagedErr != nil {
					return stagedErr
				}
				for _, f := range staged {
					paths = append(paths, f.Path)
				}
				fileLabel = "staged: "
			}
			status, err := protectlib.ComputeStatus(env.Config.Protect.Rules(), override, paths)
			if err != nil {
				return err
			}

			report := statusReport{
				Mode:             protectlib.EffectiveMode(env.Config.Protect.Mode),
				Rules:            status.Rules,
				DisabledPatterns: status.DisabledPatterns,
			}
			for _, rs := range status.Rules {
				if !rs.Disabled {
					report.StagedMatches += len(rs.MatchedFiles)
				}
			}

			out := cli.NewOutput("protect status", fmt.Sprintf("sv protect: %d rule(s)", len(status.Rules)), report).
				Summaryf("default mode", "%s", report.Mode)
			for _, rs := range status.Rules {
				line := fmt.Sprintf("%s [%s]", rs.Rule.Pattern, protectlib.EffectiveMode(rs.Rule.Mode))
				if rs.Disabled {
					line += " (disabled here)"
				}
				out.Detail(line)
				for _, f := range rs.MatchedFiles {
					out.Detail("  " + fileLabel + f)
				}
			}
			if report.StagedMatches > 0 {
				noun := "staged file(s)"
				if len(args) > 0 {
					noun = "path(s)"
				}
				out.Warning(fmt.Sprintf("%d %s match enabled protect rules", report.StagedMatches, noun))
				out.NextStep("sv protect off <pattern> to disable a rule in this workspace")
			}
			if len(status.Rules) == 0 {
				out.NextStep("sv protect add <pattern> to protect paths")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type addParams struct {
	cli.JSONOutput
	Mode string `flag:"mode" desc:"rule mode: guard, warn, or readonly"`
}

type addReport struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Invalid []string `json:"invalid"`
}

func addCommand() *cli.Command {
	var params addParams
	return &cli.Command{
		Name:    "add",
		Summary: "Add protect rules to the repository config",
		Usage:   "sv protect add <pattern>... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("protect add", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv protect add <pattern>...")
			}
			if params.Mode != "" && params.Mode != config.ModeGuard &&
				params.Mode != config.ModeWarn && params.Mode != config.ModeReadonly {
				return sverr.Validationf("invalid mode %q: want guard, warn, or readonly", params.Mode)
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}

			var report addReport
			existing := make(map[string]bool)
			for _, p := range env.Config.Protect.Paths {
				existing[p.Pattern] = true
			}
			mode := params.Mode
			if mode == protectlib.EffectiveMode(env.Config.Protect.Mode) {
				mode = ""
			}
			for _, pattern := range args {
				if _, compileErr := glob.Compile(pattern, '/'); compileErr != nil {
					report.Invalid = append(report.Invalid, pattern)
					continue
				}
				if existing[pattern] {
					report.Skipped = append(report.Skipped, pattern)
					continue
				}
				env.Config.Protect.Paths = append(env.Config.Protect.Paths, config.ProtectPath{
					Pattern: pattern,
					Mode:    mode,
				})
				existing[pattern] = true
				report.Added = append(report.Added, pattern)
			}
			if len(report.Added) == 0 && len(report.Invalid) > 0 {
				return sverr.Validationf("invalid pattern %q", report.Invalid[0])
			}
			if len(report.Added) > 0 {
				if err := env.Config.Save(configPath(env)); err != nil {
					return err
				}
			}

			out := cli.NewOutput("protect add", fmt.Sprintf("sv protect add: %d rule(s) added", len(report.Added)), report)
			for _, p := range report.Added {
				out.Detail("added " + p)
			}
			for _, p := range report.Skipped {
				out.Warning("already protected: " + p)
			}
			for _, p := range report.Invalid {
				out.Warning("invalid pattern: " + p)
			}
			out.NextStep("sv protect status")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type offParams struct {
	cli.JSONOutput
}

type offReport struct {
	Disabled []string `json:"disabled"`
	NotFound []string `json:"not_found"`
	Path     string   `json:"path"`
}

func offCommand() *cli.Command {
	var params offParams
	return &cli.Command{
		Name:    "off",
		Summary: "Disable protect rules in this workspace only",
		Usage:   "sv protect off <pattern>...",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("protect off", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv protect off <pattern>...")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}

			configured := make(map[string]bool)
			for _, p := range env.Config.Protect.Paths {
				configured[p.Pattern] = true
			}
			override, err := env.ProtectOverride()
			if err != nil {
				return err
			}

			var report offReport
			for _, pattern := range args {
				if !configured[pattern] {
					report.NotFound = append(report.NotFound, pattern)
					continue
				}
				override.DisabledPatterns = append(override.DisabledPatterns, pattern)
				report.Disabled = append(report.Disabled, pattern)
			}
			if len(report.Disabled) == 0 {
				return sverr.Validationf("no configured protect rule matches %q", args[0])
			}
			slices.Sort(override.DisabledPatterns)
			override.DisabledPatterns = slices.Compact(override.DisabledPatterns)

			if err := env.Storage.InitLocal(); err != nil {
				return err
			}
			if err := env.Storage.WriteJSON(env.Storage.ProtectOverrideFile(), override); err != nil {
				return err
			}
			report.Path = env.Storage.ProtectOverrideFile()

			out := cli.NewOutput("protect off", fmt.Sprintf("sv protect off: %d rule(s) disabled here", len(report.Disabled)), report)
			for _, p := range report.Disabled {
				out.Detail("disabled " + p)
			}
			for _, p := range report.NotFound {
				out.Warning("not configured: " + p)
			}
			out.NextStep("sv protect status")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type rmParams struct {
	cli.JSONOutput
}

type rmReport struct {
	Removed  []string `json:"removed"`
	NotFound []string `json:"not_found"`
}

func rmCommand() *cli.Command {
	var params rmParams
	return &cli.Command{
		Name:    "rm",
		Summary: "Remove protect rules from the repository config",
		Usage:   "sv protect rm <pattern>...",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("protect rm", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv protect rm <pattern>...")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}

			var report rmReport
			for _, pattern := range args {
				idx := slices.IndexFunc(env.Config.Protect.Paths, func(p config.ProtectPath) bool {
					return p.Pattern == pattern
				})
				if idx < 0 {
					report.NotFound = append(report.NotFound, pattern)
					continue
				}
				env.Config.Protect.Paths = slices.Delete(env.Config.Protect.Paths, idx, idx+1)
				report.Removed = append(report.Removed, pattern)
			}
			if len(report.Removed) == 0 {
				return sverr.Validationf("no configured protect rule matches %q", args[0])
			}
			if err := env.Config.Save(configPath(env)); err != nil {
				return err
			}

			out := cli.NewOutput("protect rm", fmt.Sprintf("sv protect rm: %d rule(s) removed", len(report.Removed)), report)
			for _, p := range report.Removed {
				out.Detail("removed " + p)
			}
			for _, p := range report.NotFound {
				out.Warning("not configured: " + p)
			}
			out.NextStep("sv protect status")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func configPath(env *cli.Env) string {
	return filepath.Join(env.Storage.WorkTree(), config.FileName)
}
