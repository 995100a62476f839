// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/event"
	leaselib "github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
)

type releaseParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Force bool `flag:"force" desc:"release leases held by other actors"`
}

type releasedLease struct {
	ID       string `json:"id"`
	Pathspec string `json:"pathspec"`
	Actor    string `json:"actor,omitempty"`
}

type notOwnedInfo struct {
	Target  string `json:"target"`
	LeaseID string `json:"lease_id"`
	Owner   string `json:"owner,omitempty"`
}

type releaseReport struct {
	Released []releasedLease `json:"released"`
	NotFound []string        `json:"not_found"`
	NotOwned []notOwnedInfo  `json:"not_owned"`
}

// ReleaseCommand releases leases by id or pathspec.
func ReleaseCommand() *cli.Command {
	var params releaseParams
	return &cli.Command{
		Name:    "release",
		Summary: "Release leases by id or pathspec",
		Usage:   "sv release <id|pathspec>... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("release", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv release <id|pathspec>...")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}

			var report releaseReport
			err = env.Storage.MutateLeases(func(ls *leaselib.Store) error {
				now := env.Storage.Clock().Now()
				for _, target := range args {
					if _, parseErr := uuid.Parse(target); parseErr == nil {
						releaseByID(ls, target, env.Actor, params.Force, now, &report)
						continue
					}
					releaseByPathspec(ls, target, env.Actor, params.Force, now, &report)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if len(report.Released) > 0 {
				appendReleaseOplog(env, report)
				emitter := env.Events()
				for _, released := range report.Released {
					emitter.Emit(event.LeaseReleased, released) //nolint:errcheck
				}
			}

			if len(report.Released) == 0 {
				if len(report.NotOwned) > 0 {
					return sverr.Conflictf("cannot release lease owned by %s; use --force to override",
						holderLabel(report.NotOwned[0].Owner))
				}
				if len(report.NotFound) > 0 {
					return sverr.Validationf("no matching leases found")
				}
			}

			out := cli.NewOutput("release", releaseHeader(report), report).
				Summaryf("released", "%d", len(report.Released)).
				Summaryf("not_found", "%d", len(report.NotFound)).
				Summaryf("not_owned", "%d", len(report.NotOwned))
			for _, released := range report.Released {
				out.Detail(fmt.Sprintf("%s %s", shortID(released.ID), released.Pathspec))
			}
			for _, target := range report.NotFound {
				out.Warning("not found: " + target)
			}
			for _, info := range report.NotOwned {
				out.Warning(fmt.Sprintf("not owned: %s (owner %s)", info.Target, holderLabel(info.Owner)))
			}
			if len(report.NotOwned) > 0 {
				out.NextStep("rerun with --force to override")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func releaseByID(ls *leaselib.Store, id, actor string, force bool, now time.Time, report *releaseReport) {
	l, err := ls.Find(id)
	if err != nil || l == nil || !l.IsActive(now) {
		report.NotFound = append(report.NotFound, id)
		return
	}
	if l.Actor != actor && l.Actor != "" && !force {
		report.NotOwned = append(report.NotOwned, notOwnedInfo{Target: id, LeaseID: l.ID, Owner: l.Actor})
		return
	}
	l.Release(now, "released by "+actor)
	report.Released = append(report.Released, releasedLease{ID: l.ID, Pathspec: l.Pathspec, Actor: l.Actor})
}

func releaseByPathspec(ls *leaselib.Store, pathspec, actor string, force bool, now time.Time, report *releaseReport) {
	matched := false
	for _, active := range ls.Active(now) {
		if active.Pathspec != pathspec {
			continue
		}
		matched = true
		l, err := ls.Find(active.ID)
		if err != nil || l == nil {
			continue
		}
		if l.Actor != actor && l.Actor != "" && !force {
			report.NotOwned = append(report.NotOwned, notOwnedInfo{Target: pathspec, LeaseID: l.ID, Owner: l.Actor})
			continue
		}
		l.Release(now, "released by "+actor)
		report.Released = append(report.Released, releasedLease{ID: l.ID, Pathspec: l.Pathspec, Actor: l.Actor})
	}
	if !matched {
		report.NotFound = append(report.NotFound, pathspec)
	}
}

func appendReleaseOplog(env *cli.Env, report releaseReport) {
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	var pathspecs []string
	var changes []oplog.LeaseChange
	for _, released := range report.Released {
		pathspecs = append(pathspecs, released.Pathspec)
		changes = append(changes, oplog.LeaseChange{LeaseID: released.ID, Action: "release"})
	}
	record := oplog.NewRecord(env.Storage.Clock(), "sv release "+strings.Join(pathspecs, " "), env.Actor)
	record.UndoData = &oplog.UndoData{LeaseChanges: changes}
	log.Append(record) //nolint:errcheck
}

func releaseHeader(report releaseReport) string {
	if len(report.Released) > 0 {
		return fmt.Sprintf("sv release: released %d lease(s)", len(report.Released))
	}
	return "sv release: no matches"
}

func shortID(id string) string {
	head, _, found := strings.Cut(id, "-")
	if found {
		return head
	}
	return id
}
