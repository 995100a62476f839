// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads .sv.toml, the per-repository configuration
// committed at the working tree root. Absent files and absent sections
// fall back to defaults; a file that is present but malformed or
// invalid is a validation error, never silently ignored.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/sv-project/sv/lib/lease"
	"github.com/sv-project/sv/lib/sverr"
)

// FileName is the configuration file at the repository root.
const FileName = ".sv.toml"

// Config is the root of .sv.toml.
type Config struct {
	// Base is the default base branch for new workspaces.
	Base    string        `toml:"base"`
	Actor   ActorConfig   `toml:"actor"`
	Leases  LeaseConfig   `toml:"leases"`
	Protect ProtectConfig `toml:"protect"`
	Hoist   HoistConfig   `toml:"hoist"`
	Events  EventsConfig  `toml:"events"`
}

// ActorConfig names the fallback actor.
type ActorConfig struct {
	Default string `toml:"default"`
}

// LeaseConfig carries lease engine defaults.
type LeaseConfig struct {
	DefaultStrength string `toml:"default_strength"`
	DefaultIntent   string `toml:"default_intent"`
	DefaultTTL      string `toml:"default_ttl"`
	// ExpirationGrace keeps expired leases visible before removal.
	ExpirationGrace string            `toml:"expiration_grace"`
	RequireNote     bool              `toml:"require_note"`
	Compat          LeaseCompatConfig `toml:"compat"`
}

// LeaseCompatConfig tunes the overlap rules.
type LeaseCompatConfig struct {
	AllowOverlapCooperative     bool `toml:"allow_overlap_cooperative"`
	RequireFlagForStrongOverlap bool `toml:"require_flag_for_strong_overlap"`
}

// HoistConfig tunes the replay engine.
type HoistConfig struct {
	// IntegrationPrefix is prepended to the destination key to form
	// the integration branch name.
	IntegrationPrefix string `toml:"integration_prefix"`
}

// EventsConfig wires the event stream.
type EventsConfig struct {
	// Sink is a file path, "-" for stdout, or empty to disable.
	Sink string `toml:"sink"`
}

// Default returns the configuration used when .sv.toml is absent.
func Default() Config {
	return Config{
		Base:  "main",
		Actor: ActorConfig{Default: "unknown"},
		Leases: LeaseConfig{
			DefaultStrength: "cooperative",
			DefaultIntent:   "other",
			DefaultTTL:      "2h",
			ExpirationGrace: "0s",
			RequireNote:     true,
			Compat: LeaseCompatConfig{
				AllowOverlapCooperative:     true,
				RequireFlagForStrongOverlap: true,
			},
		},
		Protect: ProtectConfig{Mode: ModeGuard},
		Hoist:   HoistConfig{IntegrationPrefix: "sv/hoist/"},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, sverr.Wrap(sverr.Internal, err, "reading %s", path)
	}
	cfg := Default()
	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, sverr.Validationf("parsing %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromRepo loads .sv.toml from the working tree root, falling back
// to defaults when the file does not exist.
func LoadFromRepo(root string) (Config, error) {
	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks every section. Called by Load; exported for the few
// callers that build configs programmatically.
func (c *Config) Validate() error {
	if _, err := lease.ParseStrength(c.Leases.DefaultStrength); err != nil {
		return sverr.Validationf("leases.default_strength: %v", err)
	}
	if _, err := lease.ParseIntent(c.Leases.DefaultIntent); err != nil {
		return sverr.Validationf("leases.default_intent: %v", err)
	}
	if _, err := lease.ParseDuration(c.Leases.DefaultTTL); err != nil {
		return sverr.Validationf("leases.default_ttl: %v", err)
	}
	if _, err := lease.ParseGrace(c.Leases.ExpirationGrace); err != nil {
		return sverr.Validationf("leases.expiration_grace: %v", err)
	}
	return c.Protect.validate()
}

// Save writes the configuration to path. Used by the protect commands
// which edit the committed rule list in place.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	buf.WriteString("# sv configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return sverr.Wrap(sverr.Internal, err, "encoding %s", path)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return sverr.Wrap(sverr.Internal, err, "writing %s", path)
	}
	return nil
}

// DefaultTemplate is the .sv.toml written by sv init. Kept as literal
// text so the generated file carries its own documentation.
const DefaultTemplate = `# sv configuration

# Default base branch for new workspaces.
base = "main"

[actor]
# Fallback actor name when --actor, SV_ACTOR, and .sv/actor are unset.
default = "unknown"

[leases]
default_strength = "cooperative"
default_intent = "other"
default_ttl = "2h"
expiration_grace = "0s"
require_note = true

[protect]
# Default mode for protected paths: guard | readonly | warn
mode = "guard"
# paths = ["Cargo.lock", { pattern = "docs/**", mode = "warn" }]
paths = []
`
