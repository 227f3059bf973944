// Package timeutil contains time related helpers
package timeutil

import "time"

// Now is a seam for tests that need a fixed clock
var Now = time.Now

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UTC truncates t to second precision in UTC, the storage resolution
func UTC(t time.Time) time.Time { return t.UTC().Truncate(time.Second) }
