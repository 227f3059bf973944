// Package strings contains small string and slice helpers
package strings

import "strings"

// IfEmpty returns def when xs is empty, xs otherwise
func IfEmpty(xs, def []string) []string {
	if len(xs) == 0 {
		return def
	}
	return xs
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CollapseSpace trims s and collapses internal whitespace runs to single spaces
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
