package models

import "unicode/utf8"

// Prefix returns at most maxChars characters from the start of s.
// The rest is dropped; a multi-byte rune is never split.
func Prefix(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// Preview is Prefix with an ellipsis when text was cut.
func Preview(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return Prefix(s, maxChars) + "..."
}
