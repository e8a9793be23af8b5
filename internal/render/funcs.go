package render

import (
	"fmt"
	"strings"
	"text/template"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// FuncMap returns template helpers for YAML rendering.
func FuncMap(tracker *EnvTracker, lookup LookupFunc) template.FuncMap {
	get := func(key string) (string, bool) {
		if tracker != nil {
			tracker.markUsed(key)
		}
		return lookup(key)
	}
	return template.FuncMap{
		"env": func(key string) string {
			value, ok := get(key)
			if !ok && tracker != nil {
				tracker.markMissing(key)
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := get(key); ok && value != "" {
				return value
			}
			return def
		},
		"required": func(key string) (string, error) {
			value, ok := get(key)
			if !ok || strings.TrimSpace(value) == "" {
				if tracker != nil {
					tracker.markMissing(key)
				}
				return "", fmt.Errorf("env %s is required", key)
			}
			return value, nil
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		"quote": func(value string) string {
			return fmt.Sprintf("%q", value)
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
}
