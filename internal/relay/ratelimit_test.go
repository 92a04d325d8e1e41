package relay

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newRateLimiter(3, time.Minute)
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !r.Allow("u1") {
			t.Fatalf("message %d rejected, want allowed", i+1)
		}
	}
	if r.Allow("u1") {
		t.Error("4th message allowed, want rejected")
	}

	// Another sender is unaffected.
	if !r.Allow("u2") {
		t.Error("different sender rejected")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newRateLimiter(2, time.Minute)
	r.now = func() time.Time { return now }

	r.Allow("u1")
	now = base.Add(30 * time.Second)
	r.Allow("u1")
	if r.Allow("u1") {
		t.Fatal("3rd message inside window allowed")
	}

	// First message leaves the window; one slot opens.
	now = base.Add(61 * time.Second)
	if !r.Allow("u1") {
		t.Error("message rejected after window slid past the oldest entry")
	}
	if r.Allow("u1") {
		t.Error("window should be full again")
	}
}

func TestRateLimiterResetAt(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newRateLimiter(1, time.Minute)
	r.now = func() time.Time { return now }

	if _, ok := r.ResetAt("u1"); ok {
		t.Error("ResetAt reported a time for an unseen sender")
	}

	r.Allow("u1")
	resetAt, ok := r.ResetAt("u1")
	if !ok {
		t.Fatal("ResetAt = none, want oldest + window")
	}
	if want := base.Add(time.Minute); !resetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", resetAt, want)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !r.Allow("u1") {
			t.Fatal("disabled limiter rejected a message")
		}
	}
}

func TestRateLimiterRejectionNotRecorded(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	r := newRateLimiter(1, time.Minute)
	r.now = func() time.Time { return now }

	r.Allow("u1")
	r.Allow("u1") // rejected, must not extend the window

	now = base.Add(61 * time.Second)
	if !r.Allow("u1") {
		t.Error("rejected message extended the window")
	}
}
