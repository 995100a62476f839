// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the repository-level commands: init, status,
// and actor identity management.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/actor"
	"github.com/sv-project/sv/lib/config"
	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/repostat"
	"github.com/sv-project/sv/lib/sverr"
)

type initParams struct {
	cli.JSONOutput
}

type initReport struct {
	RepoRoot         string `json:"repo_root"`
	CreatedConfig    bool   `json:"created_config"`
	CreatedSharedDir bool   `json:"created_shared_dir"`
	CreatedLocalDir  bool   `json:"created_local_dir"`
	UpdatedGitignore bool   `json:"updated_gitignore"`
}

// InitCommand creates the configuration and storage layout. Running
// it twice is a no-op.
func InitCommand() *cli.Command {
	var params initParams
	return &cli.Command{
		Name:    "init",
		Summary: "Initialize sv in the current repository",
		Usage:   "sv init [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			storage := env.Storage

			report := initReport{RepoRoot: storage.WorkTree()}
			report.CreatedSharedDir = !storage.IsInitialized()
			if err := storage.InitShared(); err != nil {
				return err
			}
			report.CreatedLocalDir = !dirExists(storage.LocalDir())
			if err := storage.InitLocal(); err != nil {
				return err
			}

			configPath := filepath.Join(storage.WorkTree(), config.FileName)
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				if err := lockfile.WriteAtomic(configPath, []byte(config.DefaultTemplate)); err != nil {
					return err
				}
				report.CreatedConfig = true
			}

			before := readFileOrEmpty(filepath.Join(storage.WorkTree(), ".gitignore"))
			if err := storage.EnsureGitignore(); err != nil {
				return err
			}
			after := readFileOrEmpty(filepath.Join(storage.WorkTree(), ".gitignore"))
			report.UpdatedGitignore = before != after

			out := cli.NewOutput("init", initHeader(report), report).
				Summary("repo", report.RepoRoot)
			if report.CreatedConfig {
				out.Detail("created " + config.FileName)
			}
			if report.CreatedSharedDir {
				out.Detail("initialized shared state under the git directory")
			}
			if report.UpdatedGitignore {
				out.Detail("added .sv/ to .gitignore")
			}
			out.NextStep("sv actor set <name>").NextStep("sv status")
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func initHeader(report initReport) string {
	if report.CreatedConfig || report.CreatedSharedDir || report.CreatedLocalDir || report.UpdatedGitignore {
		return "sv init: initialized"
	}
	return "sv init: nothing to do"
}

type statusParams struct {
	cli.JSONOutput
	cli.ActorFlag
	NoCache bool `flag:"no-cache" desc:"recompute instead of using the cached report"`
}

// StatusCommand reports the workspace's coordination posture.
func StatusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show workspace, lease, and protection status",
		Usage:   "sv status [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}

			registry, err := env.Storage.LoadRegistry()
			if err != nil {
				return err
			}
			entry := registry.FindByPath(env.Storage.WorkTree())

			override, err := env.ProtectOverride()
			if err != nil {
				return err
			}

			in := repostat.Inputs{
				Actor:     env.Actor,
				Cfg:       env.Config,
				Workspace: entry,
				Override:  override,
			}
			var report *repostat.Report
			if params.NoCache {
				report, err = repostat.Compute(ctx, env.Repo, env.Storage, in)
			} else {
				report, _, err = repostat.ComputeCached(ctx, env.Repo, env.Storage, in)
			}
			if err != nil {
				return err
			}

			out := cli.NewOutput("status", statusHeader(report), report).
				Summary("actor", report.Actor).
				Summary("workspace", report.Workspace.Name).
				Summary("branch", report.Workspace.Branch)
			if ab := report.Workspace.AheadBehind; ab != nil {
				out.Summaryf("position", "%d ahead, %d behind %s", ab.Ahead, ab.Behind, ab.Base)
			}
			out.Summaryf("leases", "%d active, %d expired", report.Leases.Active, report.Leases.Expired)
			for _, owned := range report.Leases.Owned {
				out.Detail(fmt.Sprintf("%s %s (%s)", owned.ID[:8], owned.Pathspec, owned.Strength))
			}
			for _, warning := range report.Warnings {
				out.Warning(warning)
			}
			for _, step := range report.NextSteps {
				out.NextStep(step)
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func statusHeader(report *repostat.Report) string {
	if len(report.Warnings) > 0 {
		return fmt.Sprintf("sv status: %s (%d warning(s))", report.Workspace.Branch, len(report.Warnings))
	}
	return "sv status: " + report.Workspace.Branch
}

type actorSetParams struct {
	cli.JSONOutput
}

type actorShowParams struct {
	cli.JSONOutput
	cli.ActorFlag
}

// ActorCommand manages the workspace-local actor identity.
func ActorCommand() *cli.Command {
	var setParams actorSetParams
	var showParams actorShowParams
	return &cli.Command{
		Name:    "actor",
		Summary: "Show or set the actor identity",
		Subcommands: []*cli.Command{
			{
				Name:    "set",
				Summary: "Persist the actor name for this workspace",
				Usage:   "sv actor set <name> [flags]",
				Flags: func() *pflag.FlagSet {
					return cli.FlagsFromParams("actor set", &setParams)
				},
				Run: func(args []string) error {
					if len(args) != 1 {
						return sverr.Validationf("usage: sv actor set <name>")
					}
					name := args[0]
					if err := actor.Validate(name); err != nil {
						return err
					}
					env, err := cli.LoadEnv(context.Background(), "")
					if err != nil {
						return err
					}
					if err := env.Storage.WriteActor(name); err != nil {
						return err
					}
					out := cli.NewOutput("actor set", "sv actor set: "+name, map[string]string{
						"actor": name,
						"path":  env.Storage.ActorFile(),
					}).
						Summary("actor", name).
						Summary("path", env.Storage.ActorFile()).
						NextStep("sv status")
					return out.Emit(setParams.OutputJSON, setParams.Quiet)
				},
			},
			{
				Name:    "show",
				Summary: "Print the resolved actor and its source",
				Usage:   "sv actor show [flags]",
				Flags: func() *pflag.FlagSet {
					return cli.FlagsFromParams("actor show", &showParams)
				},
				Run: func(args []string) error {
					env, err := cli.LoadEnv(context.Background(), showParams.Actor)
					if err != nil {
						return err
					}
					header := "sv actor: " + env.Actor
					if env.Actor == actor.Fallback {
						header = "sv actor: not set"
					}
					out := cli.NewOutput("actor show", header, map[string]string{
						"actor":  env.Actor,
						"source": string(env.ActorSource),
					}).
						Summary("actor", env.Actor).
						Summary("source", string(env.ActorSource))
					if env.Actor == actor.Fallback {
						out.Warning("actor not set; using default")
						out.NextStep("sv actor set <name>")
					}
					return out.Emit(showParams.OutputJSON, showParams.Quiet)
				},
			},
		},
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func readFileOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
