package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxMessageLength  = 4096
	MaxTemplateLength = 10000
	MaxPhoneLength    = 20
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,}$`)

// ValidPhone checks if a phone number is plausible before it reaches the
// session layer (digits, optional leading +, spaces and dashes allowed)
func ValidPhone(s string) bool {
	if s == "" || len(s) > MaxPhoneLength {
		return false
	}
	return phonePattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// ValidateLength checks if string is within bounds
func ValidateLength(s string, min, max int) bool {
	l := len(s)
	return l >= min && l <= max
}
