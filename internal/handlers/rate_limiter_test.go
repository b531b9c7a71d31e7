package handlers

import (
	"testing"
	"time"
)

func TestSimpleRateLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	limiter := newSimpleRateLimiter(2, time.Minute, clock)

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatal("first two attempts should pass")
	}
	if limiter.Allow("user-1") {
		t.Fatal("third attempt inside window should be rejected")
	}
	if !limiter.Allow("user-2") {
		t.Fatal("other keys have their own budget")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("user-1") {
		t.Fatal("window expiry should reset the budget")
	}
}

func TestSimpleRateLimiterDisabledWhenZero(t *testing.T) {
	if limiter := newSimpleRateLimiter(0, time.Minute, nil); limiter != nil {
		t.Fatal("zero limit should disable the limiter")
	}
}
