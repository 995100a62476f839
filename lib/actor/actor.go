// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package actor resolves the identity under which operations run.
package actor

import (
	"os"
	"strings"

	"github.com/sv-project/sv/lib/sverr"
)

// EnvVar overrides the workspace actor when set.
const EnvVar = "SV_ACTOR"

// Fallback is used when nothing else names an actor.
const Fallback = "unknown"

// Source says where a resolved actor came from.
type Source string

const (
	SourceFlag      Source = "flag"
	SourceEnv       Source = "env"
	SourceWorkspace Source = "workspace"
	SourceConfig    Source = "config"
	SourceFallback  Source = "fallback"
)

// Inputs holds the candidate identities, highest precedence first:
// the --actor flag, the SV_ACTOR environment variable, the
// workspace-local actor file, and the config default.
type Inputs struct {
	Flag          string
	Env           string
	Workspace     string
	ConfigDefault string
}

// Resolve picks the actor from inputs by precedence.
func Resolve(in Inputs) (string, Source) {
	switch {
	case in.Flag != "":
		return in.Flag, SourceFlag
	case in.Env != "":
		return in.Env, SourceEnv
	case in.Workspace != "":
		return in.Workspace, SourceWorkspace
	case in.ConfigDefault != "":
		return in.ConfigDefault, SourceConfig
	}
	return Fallback, SourceFallback
}

// FromEnv reads the environment override, trimmed.
func FromEnv() string {
	return strings.TrimSpace(os.Getenv(EnvVar))
}

// Validate rejects names that would corrupt line-oriented state or
// read ambiguously in lease listings.
func Validate(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return sverr.Validationf("actor name cannot be empty")
	}
	if trimmed != name {
		return sverr.Validationf("actor name cannot have leading or trailing whitespace")
	}
	if strings.ContainsAny(name, "\n\r\t") {
		return sverr.Validationf("actor name cannot contain control characters")
	}
	if len(name) > 128 {
		return sverr.Validationf("actor name too long (max 128 characters)")
	}
	return nil
}
