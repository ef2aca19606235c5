// Package concept maps internal concept names (e.g. "revenue") onto the
// ordered list of taxonomy-qualified XBRL identifiers that may carry them.
//
// Order matters: the domestic taxonomy (us-gaap) is listed first and the
// international taxonomy (ifrs-full) after it, so the resolver tries the
// regulator's own tags before falling back.
package concept

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed defaults.yaml
var defaultMapYAML []byte

// Map is an immutable internal-name -> candidate-identifier lookup.
// It is safe for concurrent use because nothing mutates it after New.
type Map struct {
	entries map[string][]string
}

// file is the on-disk YAML layout.
//
//	concepts:
//	  revenue:
//	    - us-gaap:Revenues
//	    - ifrs-full:Revenue
type file struct {
	Concepts map[string][]string `yaml:"concepts"`
}

// New validates and copies entries into an immutable Map.
func New(entries map[string][]string) (*Map, error) {
	m := &Map{entries: make(map[string][]string, len(entries))}
	for name, ids := range entries {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("concept: empty concept name")
		}
		seen := make(map[string]bool, len(ids))
		candidates := make([]string, 0, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if _, _, ok := SplitID(id); !ok {
				return nil, fmt.Errorf("concept: %s: malformed identifier %q (want taxonomy:Concept)", name, id)
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			candidates = append(candidates, id)
		}
		m.entries[name] = candidates
	}
	return m, nil
}

// Parse decodes a YAML concept map.
func Parse(data []byte) (*Map, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("concept: parse map: %w", err)
	}
	if len(f.Concepts) == 0 {
		return nil, fmt.Errorf("concept: map defines no concepts")
	}
	return New(f.Concepts)
}

// LoadFile reads a YAML concept map from disk.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("concept: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in concept map.
func Default() (*Map, error) {
	return Parse(defaultMapYAML)
}

// Candidates returns the ordered identifiers for name. Unknown names
// yield an empty slice, never an error. The returned slice is a copy.
func (m *Map) Candidates(name string) []string {
	ids := m.entries[name]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Has reports whether name has at least one candidate identifier.
func (m *Map) Has(name string) bool {
	return len(m.entries[name]) > 0
}

// Names returns all internal concept names, sorted.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SplitID splits "us-gaap:Revenues" into its taxonomy and concept parts.
func SplitID(id string) (taxonomy, name string, ok bool) {
	taxonomy, name, found := strings.Cut(id, ":")
	if !found || taxonomy == "" || name == "" || strings.ContainsAny(name, ": ") {
		return "", "", false
	}
	return taxonomy, name, true
}

// IsQualified reports whether s already looks like a taxonomy identifier
// rather than an internal concept name.
func IsQualified(s string) bool {
	_, _, ok := SplitID(s)
	return ok
}
