// Package logattr builds slog attributes from user-supplied text.
package logattr

import (
	"log/slog"
	"unicode/utf8"
)

// Truncate shortens value to at most limit bytes without splitting a rune,
// marking the cut with "...".
func Truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	const marker = "..."
	if limit <= len(marker) {
		return cutRunes(value, limit)
	}
	return cutRunes(value, limit-len(marker)) + marker
}

// cutRunes returns the longest prefix of value that fits in n bytes and
// ends on a rune boundary.
func cutRunes(value string, n int) string {
	if n >= len(value) {
		return value
	}
	for n > 0 && !utf8.RuneStart(value[n]) {
		n--
	}
	return value[:n]
}

// Text is slog.String with the value truncated to limit bytes.
func Text(key, value string, limit int) slog.Attr {
	return slog.String(key, Truncate(value, limit))
}
