// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package lease implements the lease lifecycle commands: take,
// release, and the lease inspection subtree.
package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	"github.com/sv-project/sv/lib/event"
	leaselib "github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
)

type takeParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Strength     string `flag:"strength" desc:"lease strength: observe, cooperative, strong, exclusive"`
	Intent       string `flag:"intent" desc:"declared intent for the work"`
	Scope        string `flag:"scope" default:"repo" desc:"lease scope: repo, branch:<name>, ws:<name>"`
	TTL          string `flag:"ttl" desc:"lease duration (Ns/Nm/Nh/Nd)"`
	Note         string `flag:"note" desc:"note explaining the reservation"`
	AllowOverlap bool   `flag:"allow-overlap" desc:"take the lease despite overlapping holders"`
}

type leaseInfo struct {
	ID        string    `json:"id"`
	Pathspec  string    `json:"pathspec"`
	Strength  string    `json:"strength"`
	Intent    string    `json:"intent"`
	Actor     string    `json:"actor,omitempty"`
	TTL       string    `json:"ttl"`
	ExpiresAt time.Time `json:"expires_at"`
}

type conflictInfo struct {
	Pathspec string `json:"pathspec"`
	Holder   string `json:"holder,omitempty"`
	Strength string `json:"strength"`
	LeaseID  string `json:"lease_id"`
}

type takeReport struct {
	Actor     string         `json:"actor"`
	Created   []leaseInfo    `json:"created"`
	Updated   []leaseInfo    `json:"updated"`
	Conflicts []conflictInfo `json:"conflicts"`
}

// TakeCommand reserves pathspecs under the current actor.
func TakeCommand() *cli.Command {
	var params takeParams
	return &cli.Command{
		Name:    "take",
		Summary: "Take leases on paths",
		Usage:   "sv take <pathspec>... [flags]",
		Examples: []cli.Example{
			{Description: "Reserve a subtree for refactoring", Command: `sv take "src/**" --strength strong --intent refactor --note "extract parser"`},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("take", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv take <pathspec>...")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}

			strength, err := leaselib.ParseStrength(orDefault(params.Strength, env.Config.Leases.DefaultStrength))
			if err != nil {
				return err
			}
			intent, err := leaselib.ParseIntent(orDefault(params.Intent, env.Config.Leases.DefaultIntent))
			if err != nil {
				return err
			}
			scope, err := leaselib.ParseScope(params.Scope)
			if err != nil {
				return err
			}
			ttl := orDefault(params.TTL, env.Config.Leases.DefaultTTL)

			compat := leaselib.Compat{
				AllowOverlapCooperative:     env.Config.Leases.Compat.AllowOverlapCooperative,
				RequireFlagForStrongOverlap: env.Config.Leases.Compat.RequireFlagForStrongOverlap,
			}

			report := takeReport{Actor: env.Actor}
			err = env.Storage.MutateLeases(func(ls *leaselib.Store) error {
				now := env.Storage.Clock().Now()
				grace, err := leaselib.ParseGrace(env.Config.Leases.ExpirationGrace)
				if err != nil {
					return err
				}
				ls.CleanupExpired(grace, now)

				// AcquireAll is all-or-nothing across the pathspecs:
				// one contested path means no lease is recorded.
				result, err := ls.AcquireAll(args, leaselib.Params{
					Strength:    strength,
					Intent:      intent,
					Actor:       env.Actor,
					Scope:       scope,
					Note:        params.Note,
					TTL:         ttl,
					RequireNote: env.Config.Leases.RequireNote,
				}, compat, params.AllowOverlap, now)
				if err != nil {
					return err
				}
				for _, c := range result.Conflicts {
					report.Conflicts = append(report.Conflicts, conflictInfo{
						Pathspec: c.Pathspec,
						Holder:   c.Held.Actor,
						Strength: string(c.Held.Strength),
						LeaseID:  c.Held.ID,
					})
				}
				for _, l := range result.Created {
					report.Created = append(report.Created, toInfo(l))
				}
				for _, l := range result.Updated {
					report.Updated = append(report.Updated, toInfo(l))
				}
				return nil
			})
			if err != nil {
				return err
			}

			if len(report.Created)+len(report.Updated) > 0 {
				appendTakeOplog(env, args, report)
				emitter := env.Events()
				for _, info := range append(report.Created, report.Updated...) {
					emitter.Emit(event.LeaseCreated, info) //nolint:errcheck
				}
			}

			if len(report.Conflicts) > 0 {
				lines := make([]string, 0, len(report.Conflicts))
				for _, c := range report.Conflicts {
					lines = append(lines, fmt.Sprintf("%s held by %s (%s)",
						c.Pathspec, holderLabel(c.Holder), c.Strength))
				}
				return sverr.Conflictf("lease conflict: %s", strings.Join(lines, "; "))
			}

			out := cli.NewOutput("take", takeHeader(report), report).
				Summary("actor", env.Actor).
				Summaryf("created", "%d", len(report.Created)).
				Summaryf("updated", "%d", len(report.Updated))
			for _, info := range report.Created {
				out.Detail(fmt.Sprintf("%s (%s, intent: %s, ttl: %s)", info.Pathspec, info.Strength, info.Intent, info.TTL))
			}
			for _, info := range report.Updated {
				out.Detail(fmt.Sprintf("%s (updated: %s, ttl: %s)", info.Pathspec, info.Strength, info.TTL))
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func appendTakeOplog(env *cli.Env, pathspecs []string, report takeReport) {
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	record := oplog.NewRecord(env.Storage.Clock(), "sv take "+strings.Join(pathspecs, " "), env.Actor)
	var changes []oplog.LeaseChange
	for _, info := range report.Created {
		changes = append(changes, oplog.LeaseChange{LeaseID: info.ID, Action: "create"})
	}
	for _, info := range report.Updated {
		changes = append(changes, oplog.LeaseChange{LeaseID: info.ID, Action: "update"})
	}
	record.UndoData = &oplog.UndoData{LeaseChanges: changes}
	log.Append(record) //nolint:errcheck
}

func takeHeader(report takeReport) string {
	created, updated := len(report.Created), len(report.Updated)
	if created+updated == 0 {
		return "sv take: no leases created"
	}
	return fmt.Sprintf("sv take: created %d, updated %d lease(s)", created, updated)
}

func toInfo(l leaselib.Lease) leaseInfo {
	return leaseInfo{
		ID:        l.ID,
		Pathspec:  l.Pathspec,
		Strength:  string(l.Strength),
		Intent:    string(l.Intent),
		Actor:     l.Actor,
		TTL:       l.TTL,
		ExpiresAt: l.ExpiresAt,
	}
}

func holderLabel(holder string) string {
	if holder == "" {
		return "(ownerless)"
	}
	return holder
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
