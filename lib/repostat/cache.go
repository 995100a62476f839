// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package repostat

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/sv-project/sv/lib/git"
	"github.com/sv-project/sv/lib/store"
)

// cacheEntry is the on-disk shape of .sv/status-cache.json.
type cacheEntry struct {
	Key         string    `json:"key"`
	GeneratedAt time.Time `json:"generated_at"`
	Report      *Report   `json:"report"`
}

func cachePath(storage *store.Storage) string {
	return filepath.Join(storage.LocalDir(), "status-cache.json")
}

// CacheKey digests the state the report depends on: HEAD, the status
// porcelain output, and the coordination files' stamps. Any change to
// the working copy or the shared state rotates the key.
func CacheKey(ctx context.Context, repo *git.Repository, storage *store.Storage) (string, error) {
	h := blake3.New()

	if head, err := repo.Head(ctx); err == nil {
		h.WriteString(head.OID)
	}
	h.WriteString("\x00")

	porcelain, err := repo.Run(ctx, "status", "--porcelain")
	if err == nil {
		h.Write([]byte(porcelain))
	}
	h.WriteString("\x00")

	for _, path := range []string{storage.LeasesFile(), storage.ConflictsFile(), storage.ActorFile()} {
		if info, err := os.Stat(path); err == nil {
			h.WriteString(info.ModTime().UTC().Format(time.RFC3339Nano))
			h.WriteString("\x00")
		} else {
			h.WriteString("absent\x00")
		}
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), nil
}

// LoadCached returns the cached report when its key still matches.
func LoadCached(storage *store.Storage, key string) (*Report, bool) {
	var entry cacheEntry
	if err := storage.ReadJSON(cachePath(storage), &entry); err != nil {
		return nil, false
	}
	if entry.Key != key || entry.Report == nil {
		return nil, false
	}
	return entry.Report, true
}

// SaveCached stores the report under the given key.
func SaveCached(storage *store.Storage, key string, report *Report) error {
	return storage.WriteJSON(cachePath(storage), cacheEntry{
		Key:         key,
		GeneratedAt: storage.Clock().Now(),
		Report:      report,
	})
}

// ComputeCached returns a fresh or cached report. The second result
// reports whether the cache was hit. Cache write failures are
// swallowed since the report itself is still valid.
func ComputeCached(ctx context.Context, repo *git.Repository, storage *store.Storage, in Inputs) (*Report, bool, error) {
	key, err := CacheKey(ctx, repo, storage)
	if err == nil {
		if report, ok := LoadCached(storage, key); ok {
			return report, true, nil
		}
	}
	report, err := Compute(ctx, repo, storage, in)
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		SaveCached(storage, key, report) //nolint:errcheck
	}
	return report, false, nil
}
