package ratelimit_test

import (
	"testing"
	"time"

	"github.com/artpar/lexgate/domain/ratelimit"
)

var (
	baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	policy   = ratelimit.Policy{Limit: 3, Window: time.Minute}
)

func TestCheck_NewBucket(t *testing.T) {
	result, b := ratelimit.Check(ratelimit.Bucket{}, policy, baseTime)

	if !result.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	if result.Remaining != 2 {
		t.Errorf("remaining = %d, want 2", result.Remaining)
	}
	if result.ResetIn != time.Minute {
		t.Errorf("resetIn = %v, want 1m", result.ResetIn)
	}
	if b.Count != 1 {
		t.Errorf("count = %d, want 1", b.Count)
	}
	if !b.ResetAt.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("resetAt = %v, want %v", b.ResetAt, baseTime.Add(time.Minute))
	}
}

func TestCheck_LimitPlusOneRejected(t *testing.T) {
	var b ratelimit.Bucket
	var result ratelimit.Result

	for i := 1; i <= policy.Limit; i++ {
		result, b = ratelimit.Check(b, policy, baseTime.Add(time.Duration(i)*time.Second))
		if !result.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if result.Remaining != policy.Limit-i {
			t.Errorf("request %d remaining = %d, want %d", i, result.Remaining, policy.Limit-i)
		}
	}

	now := baseTime.Add(10 * time.Second)
	result, after := ratelimit.Check(b, policy, now)
	if result.Allowed {
		t.Fatal("request limit+1 allowed, want denied")
	}
	if result.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", result.Remaining)
	}
	// window opened at baseTime+1s
	if result.ResetIn != 51*time.Second {
		t.Errorf("resetIn = %v, want 51s", result.ResetIn)
	}
	if after != b {
		t.Errorf("denied check mutated bucket: %+v -> %+v", b, after)
	}
}

func TestCheck_WindowExpiryOpensFreshWindow(t *testing.T) {
	b := ratelimit.Bucket{Count: 3, ResetAt: baseTime}

	// now == resetAt counts as expired
	result, b := ratelimit.Check(b, policy, baseTime)
	if !result.Allowed {
		t.Fatal("expected allowed once window elapsed")
	}
	if b.Count != 1 {
		t.Errorf("count = %d, want 1", b.Count)
	}
	if result.ResetIn != policy.Window {
		t.Errorf("resetIn = %v, want %v", result.ResetIn, policy.Window)
	}
}

func TestCheck_ResetInNonIncreasing(t *testing.T) {
	p := ratelimit.Policy{Limit: 100, Window: time.Minute}
	var b ratelimit.Bucket
	var result ratelimit.Result
	last := time.Duration(1<<62 - 1)

	for i := 0; i < 60; i++ {
		result, b = ratelimit.Check(b, p, baseTime.Add(time.Duration(i)*time.Second))
		if result.ResetIn > last {
			t.Fatalf("step %d: resetIn increased from %v to %v", i, last, result.ResetIn)
		}
		last = result.ResetIn
	}

	result, _ = ratelimit.Check(b, p, baseTime.Add(time.Minute))
	if result.ResetIn != time.Minute {
		t.Errorf("new window resetIn = %v, want exactly 1m", result.ResetIn)
	}
}

func TestExpired(t *testing.T) {
	tests := []struct {
		name string
		b    ratelimit.Bucket
		now  time.Time
		want bool
	}{
		{"zero bucket", ratelimit.Bucket{}, baseTime, true},
		{"before reset", ratelimit.Bucket{Count: 1, ResetAt: baseTime.Add(time.Second)}, baseTime, false},
		{"at reset", ratelimit.Bucket{Count: 1, ResetAt: baseTime}, baseTime, true},
		{"after reset", ratelimit.Bucket{Count: 1, ResetAt: baseTime.Add(-time.Second)}, baseTime, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratelimit.Expired(tt.b, tt.now); got != tt.want {
				t.Errorf("Expired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResult_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		resetIn time.Duration
		want    int64
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}

	for _, tt := range tests {
		r := ratelimit.Result{ResetIn: tt.resetIn}
		if got := r.RetryAfterSeconds(); got != tt.want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", tt.resetIn, got, tt.want)
		}
	}
}

func TestResult_ResetInMs(t *testing.T) {
	r := ratelimit.Result{ResetIn: 1500 * time.Millisecond}
	if got := r.ResetInMs(); got != 1500 {
		t.Errorf("ResetInMs = %d, want 1500", got)
	}
}
