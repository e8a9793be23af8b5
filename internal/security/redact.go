package security

import (
	"net/http"
	"strings"
	"unicode/utf8"
)

const mask = "***"

var sensitiveSubstrings = []string{
	"token",
	"password",
	"passwd",
	"authorization",
	"apikey",
	"api_key",
	"secret",
	"credential",
	"cookie",
	"session",
	"jwt",
	"bearer",
}

// RedactArguments returns a copy of arguments with sensitive values replaced
// and free text shortened to maxText runes. A maxText of zero keeps text intact.
func RedactArguments(values map[string]any, maxText int) map[string]any {
	if values == nil {
		return nil
	}
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitiveKey(key) {
			redacted[key] = mask
			continue
		}
		if s, ok := value.(string); ok {
			redacted[key] = Truncate(s, maxText)
			continue
		}
		redacted[key] = value
	}
	return redacted
}

// RedactHeaders returns a flat copy of h with sensitive headers masked.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key := range h {
		if isSensitiveKey(key) {
			out[key] = mask
			continue
		}
		out[key] = h.Get(key)
	}
	return out
}

// Truncate shortens s to maxRunes runes, appending an ellipsis.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "…"
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
