// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/sv-project/sv/lib/actor"
	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/config"
	"github.com/sv-project/sv/lib/event"
	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/protect"
	"github.com/sv-project/sv/lib/store"
)

// Env bundles everything a command needs: the discovered repository,
// the coordination storage, the loaded configuration, and the
// resolved actor identity. Built once per invocation by LoadEnv.
type Env struct {
	Repo    *git.Repository
	Storage *store.Storage
	Config  config.Config
	Actor   string
	// ActorSource says where Actor came from (flag, env, workspace
	// file, config default, or fallback).
	ActorSource actor.Source
	Logger      *slog.Logger
}

// ActorFlag is embedded in params structs of commands that accept an
// identity override.
type ActorFlag struct {
	Actor string `flag:"actor" desc:"act as this identity"`
}

// RepoEnvVar overrides where repository discovery starts.
const RepoEnvVar = "SV_REPO"

// LoadEnv discovers the repository starting from SV_REPO or the
// working directory and assembles the command environment. actorFlag
// is the --actor value, empty when the command has no such flag.
func LoadEnv(ctx context.Context, actorFlag string) (*Env, error) {
	dir := os.Getenv(RepoEnvVar)
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = cwd
	}
	return LoadEnvAt(ctx, dir, actorFlag)
}

// LoadEnvAt is LoadEnv rooted at an explicit directory, used by tests.
func LoadEnvAt(ctx context.Context, dir, actorFlag string) (*Env, error) {
	repo, err := git.Discover(ctx, dir)
	if err != nil {
		return nil, err
	}
	workTree, err := repo.WorkTreeRoot(ctx)
	if err != nil {
		return nil, err
	}
	commonDir, err := repo.CommonDir(ctx)
	if err != nil {
		return nil, err
	}
	storage := store.New(commonDir, workTree, clock.Real())

	cfg, err := config.LoadFromRepo(workTree)
	if err != nil {
		return nil, err
	}

	name, source := actor.Resolve(actor.Inputs{
		Flag:          actorFlag,
		Env:           actor.FromEnv(),
		Workspace:     storage.ReadActor(),
		ConfigDefault: cfg.Actor.Default,
	})

	return &Env{
		Repo:        repo,
		Storage:     storage,
		Config:      cfg,
		Actor:       name,
		ActorSource: source,
		Logger:      NewCommandLogger(),
	}, nil
}

// ProtectOverride loads the workspace's protect override file. A
// missing file is an empty override.
func (e *Env) ProtectOverride() (protect.Override, error) {
	data, err := os.ReadFile(e.Storage.ProtectOverrideFile())
	if err != nil {
		if os.IsNotExist(err) {
			return protect.Override{}, nil
		}
		return protect.Override{}, err
	}
	return protect.ParseOverride(data)
}

// Events builds the event emitter from the configured sink. Returns
// nil (a valid no-op emitter) when events are disabled.
func (e *Env) Events() *event.Emitter {
	dest := event.ParseDestination(e.Config.Events.Sink)
	return event.NewEmitter(dest, e.Storage.Clock(), e.Actor)
}
