package render

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
)

// EnvTracker tracks referenced environment variables during template rendering.
type EnvTracker struct {
	missing map[string]struct{}
	used    map[string]struct{}
}

func (t *EnvTracker) markUsed(key string) {
	if t.used == nil {
		t.used = map[string]struct{}{}
	}
	t.used[key] = struct{}{}
}

func (t *EnvTracker) markMissing(key string) {
	if t.missing == nil {
		t.missing = map[string]struct{}{}
	}
	t.missing[key] = struct{}{}
}

// Missing returns the sorted list of missing environment variables.
func (t *EnvTracker) Missing() []string {
	out := make([]string, 0, len(t.missing))
	for key := range t.missing {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// RenderFile loads and renders a YAML template file against the process environment.
func RenderFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return RenderBytes(path, raw)
}

// RenderBytes renders a YAML template against the process environment.
func RenderBytes(name string, raw []byte) ([]byte, error) {
	return RenderWith(name, raw, os.LookupEnv)
}

// RenderWith renders a YAML template resolving variables through lookup.
// Variables read with env or required must be set.
func RenderWith(name string, raw []byte, lookup LookupFunc) ([]byte, error) {
	tracker := &EnvTracker{}
	if strings.TrimSpace(name) == "" {
		name = "config"
	}
	tmpl, err := template.New(name).Funcs(FuncMap(tracker, lookup)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	execErr := tmpl.Execute(&buf, map[string]any{})
	if len(tracker.missing) > 0 {
		return nil, fmt.Errorf("missing env vars: %s", strings.Join(tracker.Missing(), ", "))
	}
	if execErr != nil {
		return nil, fmt.Errorf("render template: %w", execErr)
	}
	return buf.Bytes(), nil
}
