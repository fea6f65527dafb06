// Package model defines the core domain types for roomchat.
package model

import (
	"strings"
	"unicode"
)

// SanitizeText strips control characters from user-supplied names so they
// cannot carry terminal escapes or null bytes. Newlines collapse to spaces.
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
