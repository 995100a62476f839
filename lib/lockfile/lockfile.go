// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile provides the concurrency primitives under every
// mutating sv operation: advisory file locks with bounded retry, and
// atomic whole-file writes (temp file plus rename). Multiple sv
// processes in different worktrees mutate the same shared state files,
// so every read-modify-write cycle runs under a lock and every write
// is atomic.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/sverr"
)

// DefaultTimeout bounds how long Acquire waits for a contended lock.
const DefaultTimeout = 5 * time.Second

// retryInterval is the pause between acquisition attempts.
const retryInterval = 50 * time.Millisecond

// Lock is a held advisory lock. Release it when the critical section
// ends; the lock file itself is left in place for reuse.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes the advisory lock at path, retrying every 50ms until
// timeout. A zero timeout uses DefaultTimeout. The lock file's parent
// directory is created if missing. Contention past the deadline is a
// conflict error (exit 3), not an internal one: another sv process
// holding the lock is a coordination outcome.
func Acquire(clk clock.Clock, path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, sverr.Wrap(sverr.Internal, err, "creating lock directory")
	}

	fl := flock.New(path)
	deadline := clk.Now().Add(timeout)
	for {
		held, err := fl.TryLock()
		if err != nil {
			return nil, sverr.Wrap(sverr.Internal, err, "locking %s", path)
		}
		if held {
			return &Lock{path: path, fl: fl}, nil
		}
		if !clk.Now().Before(deadline) {
			return nil, sverr.Conflictf("timed out after %v waiting for lock %s", timeout, path)
		}
		clk.Sleep(retryInterval)
	}
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// WithLock runs fn while holding the lock at lockPath.
func WithLock(clk clock.Clock, lockPath string, fn func() error) error {
	lock, err := Acquire(clk, lockPath, 0)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

// WriteAtomic writes data to path through a temp file in the same
// directory, then renames it into place. Readers never observe a
// partial file. The temp name carries the pid so concurrent writers
// in different processes cannot collide before the rename.
func WriteAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sverr.Wrap(sverr.Internal, err, "creating directory for %s", path)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "creating %s", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return sverr.Wrap(sverr.Internal, err, "writing %s", tmp)
	}
	// Sync before the rename: a crash must not leave the final name
	// pointing at unflushed content.
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return sverr.Wrap(sverr.Internal, err, "syncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return sverr.Wrap(sverr.Internal, err, "closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return sverr.Wrap(sverr.Internal, err, "renaming %s into place", tmp)
	}
	return nil
}

// WriteAtomicLocked performs an atomic write while holding lockPath.
func WriteAtomicLocked(clk clock.Clock, lockPath, path string, data []byte) error {
	return WithLock(clk, lockPath, func() error {
		return WriteAtomic(path, data)
	})
}

// ReadLocked reads path while holding lockPath. A missing file returns
// (nil, nil) so callers can treat absent state as empty.
func ReadLocked(clk clock.Clock, lockPath, path string) ([]byte, error) {
	var data []byte
	err := WithLock(clk, lockPath, func() error {
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				return nil
			}
			return sverr.Wrap(sverr.Internal, readErr, "reading %s", path)
		}
		data = b
		return nil
	})
	return data, err
}

// AppendLine appends one line to path, creating it if needed. Callers
// hold the file's lock; the append itself is a single write so partial
// lines do not interleave.
func AppendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sverr.Wrap(sverr.Internal, err, "creating directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "opening %s for append", path)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return sverr.Wrap(sverr.Internal, err, "appending to %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return sverr.Wrap(sverr.Internal, err, "syncing %s", path)
	}
	return f.Close()
}
