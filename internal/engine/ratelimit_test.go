package engine

import (
	"testing"
	"time"
)

func TestRateLimiterFirstSubmissionAllowed(t *testing.T) {
	limiter := NewRateLimiter(500 * time.Millisecond)
	if !limiter.TryConsume(time.UnixMilli(1_000)) {
		t.Fatal("first submission should be allowed")
	}
}

func TestRateLimiterDeniesInsideCooldown(t *testing.T) {
	limiter := NewRateLimiter(500 * time.Millisecond)
	base := time.UnixMilli(10_000)

	if !limiter.TryConsume(base) {
		t.Fatal("first submission should be allowed")
	}
	if limiter.TryConsume(base.Add(100 * time.Millisecond)) {
		t.Fatal("submission 100ms after accept should be denied")
	}
	if limiter.TryConsume(base.Add(499 * time.Millisecond)) {
		t.Fatal("submission 499ms after accept should be denied")
	}
	if !limiter.TryConsume(base.Add(500 * time.Millisecond)) {
		t.Fatal("submission exactly at cooldown should be allowed")
	}
}

func TestRateLimiterAcceptedSubmissionsNeverCloserThanCooldown(t *testing.T) {
	const cooldown = 500 * time.Millisecond
	limiter := NewRateLimiter(cooldown)

	var accepted []time.Time
	now := time.UnixMilli(0)
	for i := 0; i < 200; i++ {
		now = now.Add(time.Duration(37*(i%9)+13) * time.Millisecond)
		if limiter.TryConsume(now) {
			accepted = append(accepted, now)
		}
	}

	if len(accepted) < 2 {
		t.Fatalf("expected several accepted submissions, got %d", len(accepted))
	}
	for i := 1; i < len(accepted); i++ {
		if gap := accepted[i].Sub(accepted[i-1]); gap < cooldown {
			t.Fatalf("accepted submissions %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestRateLimiterResetOpensWindow(t *testing.T) {
	limiter := NewRateLimiter(500 * time.Millisecond)
	base := time.UnixMilli(10_000)

	if !limiter.TryConsume(base) {
		t.Fatal("first submission should be allowed")
	}
	limiter.Reset()
	if !limiter.TryConsume(base.Add(time.Millisecond)) {
		t.Fatal("submission after reset should be allowed")
	}
	if !limiter.Last().Equal(base.Add(time.Millisecond)) {
		t.Fatalf("Last = %v, want %v", limiter.Last(), base.Add(time.Millisecond))
	}
}
