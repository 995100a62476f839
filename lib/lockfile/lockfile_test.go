// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sv-project/sv/lib/clock"
	"github.com/sv-project/sv/lib/sverr"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteAtomic(path, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != `{"v":1}` {
		t.Fatalf("content = %q", data)
	}

	// Overwrite must replace, and no temp files may linger.
	if err := WriteAtomic(path, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestWriteAtomicCreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "file")
	if err := WriteAtomic(path, []byte("x")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
}

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "test.lock")
	lock, err := Acquire(clock.Real(), path, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Reacquire after release must succeed immediately.
	lock, err = Acquire(clock.Real(), path, time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	lock.Release()
}

func TestAcquireTimeoutIsConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "held.lock")
	held, err := Acquire(clock.Real(), path, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()

	_, err = Acquire(clock.Real(), path, 150*time.Millisecond)
	if err == nil {
		t.Fatal("second Acquire succeeded while lock held")
	}
	if sverr.KindOf(err) != sverr.Conflict {
		t.Fatalf("timeout error kind = %v, want Conflict", sverr.KindOf(err))
	}
}

func TestWithLockMutualExclusion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stress.lock")

	var inside atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithLock(clock.Real(), path, func() error {
				n := inside.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", peak.Load())
	}
}

func TestReadLockedMissingFile(t *testing.T) {
	dir := t.TempDir()
	data, err := ReadLocked(clock.Real(), filepath.Join(dir, "l.lock"), filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("ReadLocked: %v", err)
	}
	if data != nil {
		t.Fatalf("data = %q, want nil for missing file", data)
	}
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := AppendLine(path, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}
	if err := AppendLine(path, []byte(`{"n":2}`)); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(data) != "{\"n\":1}\n{\"n\":2}\n" {
		t.Fatalf("content = %q", data)
	}
}
