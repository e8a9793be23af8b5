package timeutil

import (
	"strings"
	"time"
)

// ParseDurationOrDefault parses duration and returns def on empty, invalid or negative values.
func ParseDurationOrDefault(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

// UTCNow returns the current time in UTC truncated to microseconds, the precision PostgreSQL stores.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
