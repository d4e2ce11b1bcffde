// Package bounded caps text to fixed lengths. Over-long text is truncated,
// never rejected.
package bounded

import "unicode/utf8"

// Truncate returns s cut to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
