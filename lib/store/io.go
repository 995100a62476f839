// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sv-project/sv/lib/lockfile"
	"github.com/sv-project/sv/lib/sverr"
)

// InitLocal creates the workspace-local .sv layout.
func (s *Storage) InitLocal() error {
	if err := os.MkdirAll(s.OverridesDir(), 0o755); err != nil {
		return sverr.Wrap(sverr.Internal, err, "creating %s", s.OverridesDir())
	}
	return nil
}

// InitShared creates the shared layout, an empty registry, and an
// empty lease file. Idempotent.
func (s *Storage) InitShared() error {
	for _, dir := range []string{s.sharedDir, s.OplogDir(), s.HoistDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sverr.Wrap(sverr.Internal, err, "creating %s", dir)
		}
	}
	if _, err := os.Stat(s.WorkspacesFile()); os.IsNotExist(err) {
		if err := s.WriteJSON(s.WorkspacesFile(), &Registry{Workspaces: []WorkspaceEntry{}}); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.LeasesFile()); os.IsNotExist(err) {
		if err := os.WriteFile(s.LeasesFile(), nil, 0o644); err != nil {
			return sverr.Wrap(sverr.Internal, err, "creating %s", s.LeasesFile())
		}
	}
	return nil
}

// InitAll creates both layouts.
func (s *Storage) InitAll() error {
	if err := s.InitLocal(); err != nil {
		return err
	}
	return s.InitShared()
}

// IsInitialized reports whether the shared layout exists.
func (s *Storage) IsInitialized() bool {
	_, err := os.Stat(s.sharedDir)
	return err == nil
}

// WriteJSON writes a value as indented JSON, atomically.
func (s *Storage) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "encoding %s", path)
	}
	return lockfile.WriteAtomic(path, append(data, '\n'))
}

// ReadJSON decodes a JSON file into v.
func (s *Storage) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "reading %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return sverr.Wrap(sverr.Internal, err, "decoding %s", path)
	}
	return nil
}

// AppendJSONL appends one record to a JSONL file under its lock.
func (s *Storage) AppendJSONL(path string, record any) error {
	line, err := json.Marshal(record)
	if err != nil {
		return sverr.Wrap(sverr.Internal, err, "encoding record for %s", path)
	}
	return lockfile.WithLock(s.clk, LockFor(path), func() error {
		return lockfile.AppendLine(path, line)
	})
}

// ReadJSONL decodes every line of a JSONL file into out, which must
// be a pointer to a slice. A missing file yields an empty slice.
// Blank lines are skipped; a malformed line is an error naming its
// line number.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, sverr.Wrap(sverr.Internal, err, "opening %s", path)
	}
	defer f.Close()

	var records []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, sverr.Internalf("decoding %s line %d: %v", path, lineNo, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, sverr.Wrap(sverr.Internal, err, "reading %s", path)
	}
	return records, nil
}

// WriteJSONL rewrites a JSONL file atomically from a slice of records.
func WriteJSONL[T any](path string, records []T) error {
	var buf bytes.Buffer
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return sverr.Wrap(sverr.Internal, err, "encoding record for %s", path)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return lockfile.WriteAtomic(path, buf.Bytes())
}

// ReadActor returns the workspace-local actor override, or "" when
// the file is absent or blank.
func (s *Storage) ReadActor() string {
	data, err := os.ReadFile(s.ActorFile())
	if err != nil {
		return ""
	}
	line, _, _ := bytes.Cut(data, []byte("\n"))
	return string(bytes.TrimSpace(line))
}

// WriteActor records the workspace-local actor override.
func (s *Storage) WriteActor(actor string) error {
	if err := s.InitLocal(); err != nil {
		return err
	}
	return lockfile.WriteAtomic(s.ActorFile(), []byte(actor+"\n"))
}

// EnsureGitignore makes sure the working tree's .gitignore excludes
// the local .sv directory, appending an entry when missing.
func (s *Storage) EnsureGitignore() error {
	const entry = "/.sv/"
	path := filepath.Join(s.workTree, ".gitignore")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return sverr.Wrap(sverr.Internal, err, "reading %s", path)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if string(bytes.TrimSpace(line)) == entry {
			return nil
		}
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "%s\n", entry)
	return lockfile.WriteAtomic(path, buf.Bytes())
}
