// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package commit implements the gated commit command: protected path
// enforcement, lease checks, and Change-Id stamping in front of git
// commit.
package commit

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/changeid"
	"github.com/sv-project/sv/lib/event"
	leaselib "github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	protectlib "github.com/sv-project/sv/lib/protect"
	"github.com/sv-project/sv/lib/sverr"
)

type commitParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Message        string `flag:"message,m" desc:"commit message"`
	File           string `flag:"file,F" desc:"read the commit message from a file"`
	All            bool   `flag:"all,a" desc:"stage modified and deleted files first"`
	Amend          bool   `flag:"amend" desc:"amend the previous commit"`
	NoEdit         bool   `flag:"no-edit" desc:"keep the previous message when amending"`
	AllowProtected bool   `flag:"allow-protected" desc:"commit despite protected path matches"`
	ForceLease     bool   `flag:"force-lease" desc:"commit despite blocking leases held by others"`
}

type commitReport struct {
	CommitHash string   `json:"commit_hash,omitempty"`
	ChangeID   string   `json:"change_id,omitempty"`
	Files      []string `json:"files"`
	Amended    bool     `json:"amended,omitempty"`
}

type blockedInfo struct {
	Reason     string   `json:"reason"`
	Violations []string `json:"violations"`
}

// Command builds the sv commit command.
func Command() *cli.Command {
	var params commitParams
	return &cli.Command{
		Name:    "commit",
		Summary: "Create a commit with lease and protect checks",
		Usage:   "sv commit [-m <message> | -F <file>] [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("commit", &params)
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
			return run(ctx, env, &params)
		},
	}
}

func run(ctx context.Context, env *cli.Env, params *commitParams) error {
	repo := env.Repo
	if params.All {
		if _, err := repo.Run(ctx, "add", "--update"); err != nil {
			return err
		}
	}

	staged, err := repo.StagedFiles(ctx)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(staged))
	for _, f := range staged {
		files = append(files, f.Path)
	}
	if len(files) == 0 && !params.Amend {
		out := cli.NewOutput("commit", "sv commit: nothing to commit", commitReport{Files: []string{}}).
			NextStep("stage changes with git add, or pass -a")
		return out.Emit(params.OutputJSON, params.Quiet)
	}

	if err := checkProtected(env, params, files); err != nil {
		return err
	}
	if err := checkLeases(ctx, env, params, files); err != nil {
		return err
	}

	message, changeID, err := resolveMessage(ctx, env, params)
	if err != nil {
		return err
	}

	head, err := repo.Head(ctx)
	if err != nil {
		return err
	}
	hash, err := repo.Commit(ctx, message, params.Amend)
	if err != nil {
		return err
	}

	record := oplog.NewRecord(env.Storage.Clock(), commandLine(params), env.Actor)
	record.AffectedRefs = []string{headRef(head.Branch)}
	record.Details = &oplog.Details{Commit: &oplog.CommitDetails{
		CommitHash:     hash,
		ChangeID:       changeID,
		Files:          files,
		AllowProtected: params.AllowProtected,
		ForceLease:     params.ForceLease,
	}}
	record.UndoData = &oplog.UndoData{RefUpdates: []oplog.RefUpdate{{
		Name: headRef(head.Branch),
		Old:  head.OID,
		New:  hash,
	}}}
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	log.Append(record) //nolint:errcheck

	env.Events().Emit(event.CommitCreated, commitReport{ //nolint:errcheck
		CommitHash: hash,
		ChangeID:   changeID,
		Files:      files,
		Amended:    params.Amend,
	})

	report := commitReport{CommitHash: hash, ChangeID: changeID, Files: files, Amended: params.Amend}
	out := cli.NewOutput("commit", "sv commit: "+shortHash(hash), report).
		Summaryf("files", "%d", len(files)).
		Summaryf("change_id", "%s", changeID)
	for _, f := range files {
		out.Detail(f)
	}
	out.NextStep("sv status")
	return out.Emit(params.OutputJSON, params.Quiet)
}

// checkProtected blocks on guard and readonly rules unless
// --allow-protected is set. Warn rules only print.
func checkProtected(env *cli.Env, params *commitParams, files []string) error {
	override, err := env.ProtectOverride()
	if err != nil {
		return err
	}
	blocking, warnings, err := protectlib.Evaluate(env.Config.Protect.Rules(), override, files)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s matches protected pattern %s\n", w.Path, w.Pattern)
	}
	if len(blocking) == 0 || params.AllowProtected {
		return nil
	}
	var lines []string
	for _, v := range blocking {
		lines = append(lines, fmt.Sprintf("%s (pattern %s, mode %s)", v.Path, v.Pattern, v.Mode))
	}
	env.Events().Emit(event.CommitBlocked, blockedInfo{ //nolint:errcheck
		Reason:     "protected paths",
		Violations: lines,
	})
	return sverr.Conflictf("commit touches protected paths:\n  %s\nuse --allow-protected to override",
		strings.Join(lines, "\n  "))
}

// checkLeases blocks when a staged file is covered by another actor's
// strong or exclusive lease whose scope applies here. Ownerless leases
// never block.
func checkLeases(ctx context.Context, env *cli.Env, params *commitParams, files []string) error {
	if params.ForceLease {
		return nil
	}
	ls, err := env.Storage.LoadLeases()
	if err != nil {
		return err
	}
	head, err := env.Repo.Head(ctx)
	if err != nil {
		return err
	}
	workspace := ""
	if reg, regErr := env.Storage.LoadRegistry(); regErr == nil {
		if entry := reg.FindByPath(env.Storage.WorkTree()); entry != nil {
			workspace = entry.Name
		}
	}

	now := env.Storage.Clock().Now()
	blockers := make(map[string]leaselib.Lease)
	for _, f := range files {
		for _, l := range ls.OverlappingPath(f, now) {
			if l.Actor == "" || l.Actor == env.Actor {
				continue
			}
			if l.Strength != leaselib.Strong && l.Strength != leaselib.Exclusive {
				continue
			}
			if !l.Scope.AppliesTo(head.Branch, workspace) {
				continue
			}
			blockers[l.ID] = l
		}
	}
	if len(blockers) == 0 {
		return nil
	}
	var lines []string
	for _, l := range blockers {
		lines = append(lines, fmt.Sprintf("%s %s held by %s (%s)", l.ShortID(), l.Pathspec, l.Actor, l.Strength))
	}
	env.Events().Emit(event.CommitBlocked, blockedInfo{ //nolint:errcheck
		Reason:     "leases",
		Violations: lines,
	})
	return sverr.Conflictf("commit blocked by leases:\n  %s\nuse --force-lease to override",
		strings.Join(lines, "\n  "))
}

// resolveMessage assembles the commit message from -m, -F, or the
// amended commit, and guarantees a Change-Id trailer.
func resolveMessage(ctx context.Context, env *cli.Env, params *commitParams) (message, changeID string, err error) {
	switch {
	case params.Message != "" && params.File != "":
		return "", "", sverr.Validationf("-m and -F are mutually exclusive")
	case params.Message != "":
		message = params.Message
	case params.File != "":
		data, readErr := os.ReadFile(params.File)
		if readErr != nil {
			return "", "", sverr.Wrap(sverr.Validation, readErr, "reading commit message file")
		}
		message = string(data)
	case params.Amend:
		if !params.NoEdit {
			return "", "", sverr.Validationf("pass -m, -F, or --no-edit when amending")
		}
		message, err = env.Repo.CommitMessage(ctx, "HEAD")
		if err != nil {
			return "", "", err
		}
	default:
		return "", "", sverr.Validationf("a commit message is required: pass -m or -F")
	}

	message, _ = changeid.Ensure(message)
	changeID = changeid.Find(message)
	return message, changeID, nil
}

func commandLine(params *commitParams) string {
	parts := []string{"sv commit"}
	if params.Amend {
		parts = append(parts, "--amend")
	}
	if params.AllowProtected {
		parts = append(parts, "--allow-protected")
	}
	if params.ForceLease {
		parts = append(parts, "--force-lease")
	}
	return strings.Join(parts, " ")
}

func headRef(branch string) string {
	if branch == "" {
		return "HEAD"
	}
	return "refs/heads/" + branch
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
