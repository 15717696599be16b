package util

import (
	"regexp"
	"strings"
	"unicode"
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IsValidSessionID reports whether s is usable as a client-chosen session
// identifier. The same identifier names a credential bundle on disk, so the
// character set is restricted.
func IsValidSessionID(s string) bool {
	return sessionIDRegex.MatchString(s)
}

// NormalizeCode upper-cases a human-typed pairing code and drops the
// separators people tend to add when copying it.
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
