// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowIsPinned(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	if !c.Now().Equal(start) {
		t.Fatalf("Now() moved without Advance")
	}
}

func TestFakeAdvanceReleasesAfter(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ch := c.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case fired := <-ch:
		if !fired.Equal(time.Unix(60, 0)) {
			t.Fatalf("fired at %v, want %v", fired, time.Unix(60, 0))
		}
	case <-time.After(time.Second):
		t.Fatal("After did not fire")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(time.Unix(100, 0))
	select {
	case <-c.After(0):
	case <-time.After(time.Second):
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeSleepUnblocksOnAdvance(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		c.Sleep(50 * time.Millisecond)
		close(done)
	}()

	// Let the sleeper register its waiter before advancing.
	for {
		c.mu.Lock()
		registered := len(c.waiters) > 0
		c.mu.Unlock()
		if registered {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.Advance(50 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeSet(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ch := c.After(time.Hour)
	c.Set(time.Unix(7200, 0))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Set past the deadline did not release the waiter")
	}
	if !c.Now().Equal(time.Unix(7200, 0)) {
		t.Fatalf("Now() = %v after Set", c.Now())
	}
}
