// Package configs embeds the bundled server configurations.
package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

// Default is used when neither a config file nor an embedded name is given.
const Default = "grades.yaml"

//go:embed *.yaml
var bundled embed.FS

// Names lists the embedded configurations.
func Names() []string {
	entries, err := fs.Glob(bundled, "*.yaml")
	if err != nil {
		return nil
	}
	sort.Strings(entries)
	return entries
}

// Load returns an embedded configuration; an empty name selects Default.
func Load(name string) ([]byte, error) {
	if name == "" {
		name = Default
	}
	data, err := fs.ReadFile(bundled, name)
	if err != nil {
		return nil, fmt.Errorf("embedded config %q (available: %v): %w", name, Names(), err)
	}
	return data, nil
}
