// Package expiry decides consent deadlines. All functions are pure; callers
// pass the current time explicitly. A nil deadline means no expiration.
package expiry

import "time"

// CanGrant reports whether a pending request may still be granted at now.
// The request is grantable strictly before its deadline.
func CanGrant(now time.Time, expiresAt *time.Time) bool {
	return expiresAt == nil || now.Before(*expiresAt)
}

// IsLapsed reports whether a granted consent has lapsed at now. A consent is
// lapsed strictly after its deadline; at the deadline itself it still holds.
func IsLapsed(now time.Time, expiresAt *time.Time) bool {
	return expiresAt != nil && now.After(*expiresAt)
}

// Remaining returns the time left before the deadline and whether a
// deadline exists. Past deadlines yield zero.
func Remaining(now time.Time, expiresAt *time.Time) (time.Duration, bool) {
	if expiresAt == nil {
		return 0, false
	}
	left := expiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
