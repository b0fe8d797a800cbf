package util

import (
	"os"
	"regexp"
	"strings"
)

var windowsVarRe = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands both Unix-style ($VAR, ${VAR}) and Windows-style (%VAR%)
// environment variables. Unknown Windows-style variables expand to the empty string.
func ExpandEnvUniversal(s string) string {
	unixExpanded := os.ExpandEnv(s)
	return windowsVarRe.ReplaceAllStringFunc(unixExpanded, func(match string) string {
		if value, ok := os.LookupEnv(match[1 : len(match)-1]); ok {
			return value
		}
		return ""
	})
}

// Snippet returns a short prefix of a byte slice, useful for logging response bodies.
func Snippet(b []byte) string {
	const maxLen = 200
	s := string(b)
	if len(s) > maxLen {
		runes := []rune(s)
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
	}
	return s
}

// MaskSecret keeps the first four characters of a credential and masks the rest.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
