// Package ratelimit provides pure fixed-window rate limiting.
// All functions are deterministic - same input always produces same output.
package ratelimit

import "time"

// GlobalKey is the identifier of the single bucket shared by all traffic.
const GlobalKey = "global"

// Bucket is the state of one fixed window (value type).
type Bucket struct {
	Count   int       // Requests admitted in the current window
	ResetAt time.Time // When the current window ends
}

// Policy configures one rate limit (value type).
type Policy struct {
	Limit  int           // Requests per window
	Window time.Duration // Window length
}

// Result is the outcome of a rate limit check (value type).
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration // Time until the current window ends
}

// ResetInMs returns ResetIn in whole milliseconds.
func (r Result) ResetInMs() int64 {
	return r.ResetIn.Milliseconds()
}

// RetryAfterSeconds returns ResetIn rounded up to whole seconds, at least 1.
func (r Result) RetryAfterSeconds() int64 {
	secs := int64((r.ResetIn + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Expired reports whether the bucket's window has ended at now.
// A zero bucket is always expired.
func Expired(b Bucket, now time.Time) bool {
	return !now.Before(b.ResetAt)
}

// Check performs a fixed-window rate limit check.
// This is a PURE function - the caller persists the returned bucket.
//
// An expired (or absent) bucket opens a fresh window with a count of 1.
// A denied request leaves the bucket untouched.
func Check(b Bucket, p Policy, now time.Time) (Result, Bucket) {
	if Expired(b, now) {
		b = Bucket{Count: 1, ResetAt: now.Add(p.Window)}
		return Result{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: max(p.Limit-1, 0),
			ResetIn:   p.Window,
		}, b
	}

	resetIn := b.ResetAt.Sub(now)

	if b.Count >= p.Limit {
		return Result{
			Allowed:   false,
			Limit:     p.Limit,
			Remaining: 0,
			ResetIn:   resetIn,
		}, b
	}

	b.Count++
	return Result{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: p.Limit - b.Count,
		ResetIn:   resetIn,
	}, b
}
