// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/sv-project/sv/cmd/sv/cli"
	leaselib "github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/oplog"
	"github.com/sv-project/sv/lib/sverr"
)

// LeaseCommand groups the lease inspection and maintenance subcommands.
func LeaseCommand() *cli.Command {
	return &cli.Command{
		Name:    "lease",
		Summary: "Inspect and maintain leases",
		Usage:   "sv lease <subcommand>",
		Subcommands: []*cli.Command{
			lsCommand(),
			showCommand(),
			whoCommand(),
			renewCommand(),
			breakCommand(),
		},
	}
}

type lsParams struct {
	cli.JSONOutput
	Actor string `flag:"actor" desc:"only show leases held by this actor"`
}

type lsReport struct {
	Leases []leaseInfo `json:"leases"`
}

func lsCommand() *cli.Command {
	var params lsParams
	return &cli.Command{
		Name:    "ls",
		Summary: "List active leases",
		Usage:   "sv lease ls [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("lease ls", &params)
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

			var active []leaselib.Lease
			var now time.Time
			err = env.Storage.MutateLeases(func(ls *leaselib.Store) error {
				now = env.Storage.Clock().Now()
				grace, graceErr := leaselib.ParseGrace(env.Config.Leases.ExpirationGrace)
				if graceErr != nil {
					return graceErr
				}
				ls.CleanupExpired(grace, now)
				for _, l := range ls.Active(now) {
					if params.Actor != "" && l.Actor != params.Actor {
						continue
					}
					active = append(active, l)
				}
				return nil
			})
			if err != nil {
				return err
			}

			report := lsReport{Leases: make([]leaseInfo, 0, len(active))}
			for _, l := range active {
				report.Leases = append(report.Leases, toInfo(l))
			}

			out := cli.NewOutput("lease ls", fmt.Sprintf("sv lease: %d active lease(s)", len(active)), report)
			for _, l := range active {
				out.Detail(formatLeaseLine(l, now))
				if l.Note != "" {
					out.Detail("  note: " + l.Note)
				}
			}
			if len(active) == 0 {
				out.NextStep("sv take <pathspec> to acquire a lease")
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type showParams struct {
	cli.JSONOutput
}

func showCommand() *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one lease in full",
		Usage:   "sv lease show <id>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("lease show", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv lease show <id>")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, "")
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}

			ls, err := env.Storage.LoadLeases()
			if err != nil {
				return err
			}
			l, err := ls.Find(args[0])
			if err != nil {
				return err
			}
			now := env.Storage.Clock().Now()

			out := cli.NewOutput("lease show", fmt.Sprintf("sv lease: %s %s", l.ShortID(), l.Pathspec), l).
				Summaryf("status", "%s", l.Status).
				Summaryf("strength", "%s", l.Strength).
				Summaryf("intent", "%s", l.Intent).
				Summaryf("scope", "%s", l.Scope).
				Summaryf("holder", "%s", holderLabel(l.Actor)).
				Summaryf("created", "%s", l.CreatedAt.UTC().Format(time.RFC3339)).
				Summaryf("expires", "%s", l.ExpiresAt.UTC().Format(time.RFC3339))
			if l.Note != "" {
				out.Detail("note: " + l.Note)
			}
			if l.StatusReason != "" {
				out.Detail("status reason: " + l.StatusReason)
			}
			if l.IsActive(now) {
				out.NextStep(fmt.Sprintf("sv lease renew %s --ttl %s", l.ShortID(), l.TTL))
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type whoParams struct {
	cli.JSONOutput
	cli.ActorFlag
}

type whoReport struct {
	Path   string      `json:"path"`
	Leases []leaseInfo `json:"leases"`
}

func whoCommand() *cli.Command {
	var params whoParams
	return &cli.Command{
		Name:    "who",
		Summary: "Show which leases cover a path",
		Usage:   "sv lease who <path>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("lease who", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return sverr.Validationf("usage: sv lease who <path>")
			}
			path := args[0]
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}

			ls, err := env.Storage.LoadLeases()
			if err != nil {
				return err
			}
			now := env.Storage.Clock().Now()
			overlapping := ls.OverlappingPath(path, now)

			report := whoReport{Path: path, Leases: make([]leaseInfo, 0, len(overlapping))}
			for _, l := range overlapping {
				report.Leases = append(report.Leases, toInfo(l))
			}

			header := fmt.Sprintf("sv lease who: %d lease(s) cover %s", len(overlapping), path)
			if len(overlapping) == 0 {
				header = "sv lease who: no leases cover " + path
			}
			out := cli.NewOutput("lease who", header, report)
			for _, l := range overlapping {
				out.Detail(formatLeaseLine(l, now))
			}
			if len(overlapping) == 0 {
				out.NextStep(fmt.Sprintf("sv take %s to acquire a lease", path))
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type renewParams struct {
	cli.JSONOutput
	cli.ActorFlag
	TTL string `flag:"ttl" desc:"new time to live, like 90m or 2h"`
}

type renewedLease struct {
	ID        string    `json:"id"`
	Pathspec  string    `json:"pathspec"`
	ExpiresAt time.Time `json:"expires_at"`
}

type renewReport struct {
	Renewed  []renewedLease `json:"renewed"`
	NotFound []string       `json:"not_found"`
}

func renewCommand() *cli.Command {
	var params renewParams
	return &cli.Command{
		Name:    "renew",
		Summary: "Extend the expiry of leases you hold",
		Usage:   "sv lease renew <id>... [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("lease renew", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv lease renew <id>...")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}
			ttl := params.TTL
			if ttl == "" {
				ttl = env.Config.Leases.DefaultTTL
			}
			if _, err := leaselib.ParseDuration(ttl); err != nil {
				return err
			}

			var report renewReport
			err = env.Storage.MutateLeases(func(ls *leaselib.Store) error {
				now := env.Storage.Clock().Now()
				for _, id := range args {
					l, findErr := ls.Find(id)
					if findErr != nil || !l.IsActive(now) {
						report.NotFound = append(report.NotFound, id)
						continue
					}
					if l.Actor != env.Actor && l.Actor != "" {
						report.NotFound = append(report.NotFound, id)
						continue
					}
					if renewErr := l.Renew(now, ttl); renewErr != nil {
						return renewErr
					}
					report.Renewed = append(report.Renewed, renewedLease{
						ID:        l.ID,
						Pathspec:  l.Pathspec,
						ExpiresAt: l.ExpiresAt,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}

			if len(report.Renewed) == 0 {
				return sverr.Validationf("no renewable leases matched; leases must be active and held by you")
			}
			appendLeaseOplog(env, "sv lease renew "+strings.Join(args, " "), report.Renewed, "renew")

			out := cli.NewOutput("lease renew", fmt.Sprintf("sv lease renew: renewed %d lease(s)", len(report.Renewed)), report).
				Summaryf("ttl", "%s", ttl)
			for _, r := range report.Renewed {
				out.Detail(fmt.Sprintf("%s %s (expires %s)", shortID(r.ID), r.Pathspec, r.ExpiresAt.UTC().Format(time.RFC3339)))
			}
			for _, id := range report.NotFound {
				out.Warning("not renewed: " + id)
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

type breakParams struct {
	cli.JSONOutput
	cli.ActorFlag
	Reason string `flag:"reason" desc:"why the lease is being broken (required)"`
}

type brokenLease struct {
	ID       string `json:"id"`
	Pathspec string `json:"pathspec"`
	Owner    string `json:"owner,omitempty"`
}

type breakReport struct {
	Broken   []brokenLease `json:"broken"`
	NotFound []string      `json:"not_found"`
}

func breakCommand() *cli.Command {
	var params breakParams
	return &cli.Command{
		Name:    "break",
		Summary: "Forcibly break leases regardless of owner",
		Usage:   "sv lease break <id>... --reason <text>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("lease break", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return sverr.Validationf("usage: sv lease break <id>... --reason <text>")
			}
			if strings.TrimSpace(params.Reason) == "" {
				return sverr.Validationf("--reason is required when breaking a lease")
			}
			ctx := context.Background()
			env, err := cli.LoadEnv(ctx, params.Actor)
			if err != nil {
				return err
			}
			if !env.Storage.IsInitialized() {
				return sverr.Validationf("sv not initialized; run 'sv init' first")
			}

			var report breakReport
			err = env.Storage.MutateLeases(func(ls *leaselib.Store) error {
				now := env.Storage.Clock().Now()
				for _, id := range args {
					l, findErr := ls.Find(id)
					if findErr != nil || !l.IsActive(now) {
						report.NotFound = append(report.NotFound, id)
						continue
					}
					l.Break(now, params.Reason)
					report.Broken = append(report.Broken, brokenLease{ID: l.ID, Pathspec: l.Pathspec, Owner: l.Actor})
				}
				return nil
			})
			if err != nil {
				return err
			}

			if len(report.Broken) == 0 {
				return sverr.Validationf("no matching active leases to break")
			}

			log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
			record := oplog.NewRecord(env.Storage.Clock(), "sv lease break "+strings.Join(args, " "), env.Actor)
			changes := make([]oplog.LeaseChange, 0, len(report.Broken))
			for _, b := range report.Broken {
				changes = append(changes, oplog.LeaseChange{LeaseID: b.ID, Action: "break: " + params.Reason})
			}
			record.UndoData = &oplog.UndoData{LeaseChanges: changes}
			log.Append(record) //nolint:errcheck

			out := cli.NewOutput("lease break", fmt.Sprintf("sv lease break: broke %d lease(s)", len(report.Broken)), report).
				Summaryf("reason", "%s", params.Reason)
			for _, b := range report.Broken {
				out.Detail(fmt.Sprintf("%s %s (was held by %s)", shortID(b.ID), b.Pathspec, holderLabel(b.Owner)))
			}
			for _, id := range report.NotFound {
				out.Warning("not found: " + id)
			}
			return out.Emit(params.OutputJSON, params.Quiet)
		},
	}
}

func appendLeaseOplog(env *cli.Env, command string, renewed []renewedLease, action string) {
	log := oplog.New(env.Storage.OplogDir(), env.Storage.Clock())
	record := oplog.NewRecord(env.Storage.Clock(), command, env.Actor)
	changes := make([]oplog.LeaseChange, 0, len(renewed))
	for _, r := range renewed {
		changes = append(changes, oplog.LeaseChange{LeaseID: r.ID, Action: action})
	}
	record.UndoData = &oplog.UndoData{LeaseChanges: changes}
	log.Append(record) //nolint:errcheck
}

func formatLeaseLine(l leaselib.Lease, now time.Time) string {
	return fmt.Sprintf("%s %s [%s] by %s (expires %s)",
		l.ShortID(), l.Pathspec, l.Strength, holderLabel(l.Actor), relativeTime(l.ExpiresAt, now))
}

// relativeTime renders an expiry as a coarse human delta, like "in 2h"
// or "in 3d".
func relativeTime(t, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "now"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("in %ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		return fmt.Sprintf("in %dd", int(d.Hours()/24))
	}
}
