// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/lockfile"
)

// LoadLeases reads the shared lease file under its lock.
func (s *Storage) LoadLeases() (*lease.Store, error) {
	var leases []lease.Lease
	err := lockfile.WithLock(s.clk, LockFor(s.LeasesFile()), func() error {
		var err error
		leases, err = ReadJSONL[lease.Lease](s.LeasesFile())
		return err
	})
	if err != nil {
		return nil, err
	}
	return lease.NewStore(leases), nil
}

// MutateLeases runs fn over the lease store under its lock and writes
// the result back. Stale leases are expired before fn runs.
func (s *Storage) MutateLeases(fn func(*lease.Store) error) error {
	return lockfile.WithLock(s.clk, LockFor(s.LeasesFile()), func() error {
		leases, err := ReadJSONL[lease.Lease](s.LeasesFile())
		if err != nil {
			return err
		}
		ls := lease.NewStore(leases)
		ls.ExpireStale(s.clk.Now())
		if err := fn(ls); err != nil {
			return err
		}
		return WriteJSONL(s.LeasesFile(), ls.All())
	})
}
