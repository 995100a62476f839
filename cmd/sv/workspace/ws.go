// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace implements the workspace commands: the ws subtree
// over the registry and git worktrees, and onto for rebasing one
// workspace onto another.
package workspace

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/event"
	"github.com/sv-project/sv/lib/sverr"
	workspacelib "github.com/sv-project/sv/lib/workspace"
)

// WsCommand groups the workspace lifecycle subcommands.
func WsCommand() *cli.Command {
	return &cli.Command{
		Name:    "ws",
		Summary: "Manage workspaces",
		Usage:   "sv ws <subcommand>",
		Subcommands: []*cli.Command{
			newCommand(),
			hereCommand(),
			listCommand(),
			infoCommand(),
			rmCommand(),
			switchCommand(),
			cleanCommand(),
		},
	}
}

type newParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Base string `flag:"base" desc:"ref to fork from (defaults to the configured base)"`
	Dir  string `flag:"dir" desc:"worktree location (defaults to a sibling directory)"`
}

func newCommand() *cli.Command {
	var params newParams
	return &cli.Command{
		Name:    "new",
		Summary: "Create a workspace with its own worktree and branch",
		Usage:   "sv ws new <name> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws new", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv ws new <name>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			created, err := mgr.Create(ctx, workspacelib.CreateOptions{
				Name:        args[0],
				Base:        params.Base,
				DefaultBase: env.Config.Base,
				Dir:         params.Dir,
				Actor:       env.Actor,
			})
			if err != nil {
				return err
			}
			env.Events().Emit(event.WorkspaceCreated, created) //nolint:errcheck

			out := cli.NewOutput("ws new", "sv ws new: created "+created.Name, created).
				Summaryf("path", "%s", created.Path).
				Summaryf("branch", "%s", created.Branch).
				Summaryf("base", "%s", created.Base).
				NextStep("cd " + created.Path).
				NextStep("sv take <pathspec> to lease files")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type hereParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Name string `flag:"name" desc:"registry name (defaults to the directory name)"`
}

func hereCommand() *cli.Command {
	var params hereParams
	return &cli.Command{
		Name:    "here",
		Summary: "Register the current directory as a workspace",
		Usage:   "sv ws here [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws here", &params)
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
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			created, err := mgr.RegisterHere(ctx, env.Storage.WorkTree(), params.Name, env.Actor)
			if err != nil {
				return err
			}
			env.Events().Emit(event.WorkspaceCreated, created) //nolint:errcheck

			out := cli.NewOutput("ws here", "sv ws here: registered "+created.Name, created).
				Summaryf("branch", "%s", created.Branch).
				NextStep("sv status")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type listParams struct {
	cli.JSONOutput
}

type listReport struct {
	Workspaces []workspacelib.ListItem `json:"workspaces"`
}

func listCommand() *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List registered workspaces",
		Usage:   "sv ws list",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws list", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			items, err := mgr.List(ctx)
			if err != nil {
				return err
			}
			now := env.Storage.Clock().Now()
			out := cli.NewOutput("ws list", fmt.Sprintf("sv ws: %d workspace(s)", len(items)), listReport{Workspaces: items})
			for _, item := range items {
				line := fmt.Sprintf("%s %s (branch %s, base %s)", item.Name, item.Path, item.Branch, item.Base)
				if item.Actor != "" {
					line += " by " + item.Actor
				}
				line += ", active " + relativeAge(item.LastActive, now)
				out.Detail(line)
			}
			if len(items) == 0 {
				out.NextStep("sv ws new <name> to create one")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type infoParams struct {
	cli.JSONOutput
}

func infoCommand() *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show one workspace in detail",
		Usage:   "sv ws info <name>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws info", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv ws info <name>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			details, err := mgr.Info(ctx, args[0], env.Config.Base)
			if err != nil {
				return err
			}

			out := cli.NewOutput("ws info", "sv ws info: "+details.Name, details).
				Summaryf("path", "%s", details.Path).
				Summaryf("branch", "%s", details.Branch).
				Summaryf("base", "%s", details.Base)
			if details.Actor != "" {
				out.Summaryf("actor", "%s", details.Actor)
			}
			if ab := details.AheadBehindBase; ab != nil {
				out.Summaryf("position", "%d ahead, %d behind %s", ab.Ahead, ab.Behind, ab.Base)
			}
			for _, p := range details.TouchedPaths {
				out.Detail("touched " + p)
			}
			for _, l := range details.Leases {
				out.Detail(fmt.Sprintf("lease %s %s by %s", l.ID[:8], l.Pathspec, l.Actor))
			}
			if !details.Exists {
				out.Warning("worktree directory is missing")
				out.NextStep("sv ws rm " + details.Name + " --force")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type rmParams struct {
	cli.JSONOutput
	Force bool `flag:"force" desc:"remove even with local modifications"`
}

func rmCommand() *cli.Command {
	var params rmParams
	return &cli.Command{
		Name:    "rm",
		Summary: "Remove a workspace's worktree and registry entry",
		Usage:   "sv ws rm <name> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws rm", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv ws rm <name>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			removed, err := mgr.Remove(ctx, args[0], params.Force)
			if err != nil {
				return err
			}
			env.Events().Emit(event.WorkspaceRemoved, removed) //nolint:errcheck

			out := cli.NewOutput("ws rm", "sv ws rm: removed "+removed.Name, removed).
				Summaryf("path", "%s", removed.Path).
				NextStep("sv undo to restore the registry entry")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type switchParams struct {
	cli.JSONOutput
	PathOnly bool `flag:"path-only" desc:"print only the workspace path"`
}

type switchReport struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

func switchCommand() *cli.Command {
	var params switchParams
	return &cli.Command{
		Name:    "switch",
		Summary: "Print the path of a workspace to change into",
		Usage:   "sv ws switch <name> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws switch", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv ws switch <name>")
			}
			if params.PathOnly && params.OutputJSON {
				return sverr.Validationf("--path-only and --json are mutually exclusive")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			reg, err := env.Storage.LoadRegistry()
			if err != nil {
				return err
			}
			entry := reg.Find(args[0])
			if entry == nil {
				return sverr.Validationf("workspace %q not found", args[0])
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			mgr.TouchLastActive(entry.Name) //nolint:errcheck

			if params.PathOnly {
				fmt.Println(entry.Path)
				return nil
			}
			report := switchReport{Name: entry.Name, Path: entry.Path, Branch: entry.Branch}
			out := cli.NewOutput("ws switch", "sv ws switch: "+entry.Name, report).
				Summaryf("path", "%s", entry.Path).
				NextStep("cd " + entry.Path)
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type cleanParams struct {
	cli.JSONOutput
	Dest   string `flag:"dest" desc:"merge target to check against (defaults to each base)"`
	Force  bool   `flag:"force" desc:"remove even with local modifications"`
	DryRun bool   `flag:"dry-run" desc:"report what would be removed"`
}

func cleanCommand() *cli.Command {
	var params cleanParams
	return &cli.Command{
		Name:    "clean",
		Summary: "Remove workspaces whose branches are fully merged",
		Usage:   "sv ws clean [name]... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ws clean", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			mgr := workspacelib.NewManager(env.Repo, env.Storage)
			report, err := mgr.Clean(ctx, workspacelib.CleanOptions{
				Workspaces:  args,
				Dest:        params.Dest,
				CurrentPath: env.Storage.WorkTree(),
				Force:       params.Force,
				DryRun:      params.DryRun,
			})
			if err != nil {
				return err
			}
			for _, name := range report.Removed {
				if !params.DryRun {
					env.Events().Emit(event.WorkspaceRemoved, switchReport{Name: name}) //nolint:errcheck
				}
			}

			header := fmt.Sprintf("sv ws clean: removed %d workspace(s)", len(report.Removed))
			if params.DryRun {
				header = fmt.Sprintf("sv ws clean: would remove %d workspace(s)", len(report.Removed))
			}
			out := cli.NewOutput("ws clean", header, report)
			for _, name := range report.Removed {
				out.Detail(name)
			}
			for _, skip := range report.Skipped {
				out.Detail(fmt.Sprintf("kept %s: %s", skip.Name, skip.Reason))
			}
			for _, fail := range report.Failed {
				out.Warning(fmt.Sprintf("failed %s: %s", fail.Name, fail.Error))
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

// relativeAge is used by list output when last_active is set.
func relativeAge(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
