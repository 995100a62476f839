// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject a Fake with deterministic control. Lease expiry,
// grace windows, and lock-retry loops all read time through a Clock so
// tests never sleep on the wall clock.
package clock

import "time"

// Clock provides the time operations sv needs. Any function that would
// call time.Now or time.Sleep takes a Clock (or sits on a struct that
// holds one) instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) Sleep(d time.Duration)                  { time.Sleep(d) }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
