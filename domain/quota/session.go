// Package quota provides pure functions for monthly session quotas.
// All functions are deterministic with no side effects.
package quota

import (
	"fmt"
	"time"
)

// Bucket holds the session count for one user and one calendar month (value type).
type Bucket struct {
	Count     int
	ExpiresAt time.Time // First instant of the next UTC month
}

// Result is the outcome of a session quota check (value type).
type Result struct {
	Allowed bool
	Used    int    // Sessions counted before this check
	Limit   int
	Key     string // Bucket holding a reservation; set by stores on Reserve
}

// Remaining returns how many sessions are left this month.
func (r Result) Remaining() int {
	if r.Used >= r.Limit {
		return 0
	}
	return r.Limit - r.Used
}

// Key returns the bucket key for a user in the UTC month containing now.
// The key changes the instant the month rolls over, so old buckets are never reused.
func Key(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s", userID, now.UTC().Format("2006-01"))
}

// MonthEnd returns the first instant of the UTC month after now.
func MonthEnd(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Expired reports whether the bucket belongs to a month that has ended.
func Expired(b Bucket, now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// Check reports whether one more session fits under limit.
// An expired bucket counts as unused.
func Check(b Bucket, limit int, now time.Time) Result {
	used := b.Count
	if Expired(b, now) {
		used = 0
	}
	return Result{
		Allowed: used < limit,
		Used:    used,
		Limit:   limit,
	}
}

// Increment records one session and returns the updated bucket.
func Increment(b Bucket, now time.Time) Bucket {
	if Expired(b, now) {
		return Bucket{Count: 1, ExpiresAt: MonthEnd(now)}
	}
	b.Count++
	return b
}

// Reserve checks the quota and, when allowed, counts one session.
// Used in the result is the count before the reservation.
func Reserve(b Bucket, limit int, now time.Time) (Bucket, Result) {
	r := Check(b, limit, now)
	if !r.Allowed {
		return b, r
	}
	return Increment(b, now), r
}

// Release returns one reserved session. A bucket of an ended month is left
// unchanged, and the count never drops below zero.
func Release(b Bucket, now time.Time) Bucket {
	if Expired(b, now) || b.Count == 0 {
		return b
	}
	b.Count--
	return b
}
