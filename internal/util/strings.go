// Package util provides small string helpers shared across packages.
package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// StripControl removes control characters from s, keeping newlines and
// tabs so multi-line payloads survive sanitization.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// TruncateBytes caps s at max bytes without splitting a UTF-8 sequence.
// It returns the (possibly shortened) string and the number of bytes
// dropped.
func TruncateBytes(s string, max int) (string, int) {
	if max <= 0 || len(s) <= max {
		return s, 0
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], len(s) - cut
}
