// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import "github.com/sv-project/sv/lib/sverr"

// Intent describes the kind of work a lease covers. Intent never
// blocks anything on its own; it feeds the risk analyzer, where
// sweeping mechanical changes weigh heavier than local edits.
type Intent string

const (
	IntentDocs          Intent = "docs"
	IntentInvestigation Intent = "investigation"
	IntentBugfix        Intent = "bugfix"
	IntentFeature       Intent = "feature"
	IntentRefactor      Intent = "refactor"
	IntentMechanical    Intent = "mechanical"
	IntentFormat        Intent = "format"
	IntentRename        Intent = "rename"
	IntentOther         Intent = "other"
)

// ParseIntent validates an intent name.
func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentDocs, IntentInvestigation, IntentBugfix, IntentFeature,
		IntentRefactor, IntentMechanical, IntentFormat, IntentRename, IntentOther:
		return Intent(s), nil
	}
	return "", sverr.Validationf("invalid intent %q (expected docs, investigation, bugfix, feature, refactor, mechanical, format, rename, or other)", s)
}

// ConflictRisk weighs how badly this intent collides with concurrent
// work. Wide mechanical rewrites (format, rename) conflict with nearly
// anything touching the same files; docs edits rarely do.
func (i Intent) ConflictRisk() int {
	switch i {
	case IntentDocs, IntentInvestigation:
		return 1
	case IntentBugfix:
		return 2
	case IntentFeature, IntentOther:
		return 3
	case IntentRefactor, IntentMechanical:
		return 4
	case IntentFormat, IntentRename:
		return 5
	}
	return 3
}
