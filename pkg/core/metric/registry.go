// Package metric holds the registry of named financial metrics: each entry
// is a formula over internal concepts plus the output type that decides
// how the raw result is scaled for display.
package metric

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"factcalc/pkg/core/utils"
)

//go:embed defaults.yaml
var defaultRegistryYAML []byte

// OutputType decides how a raw evaluated value is presented.
type OutputType string

const (
	OutputValue   OutputType = "Value"
	OutputPercent OutputType = "Percent"
	OutputRatio   OutputType = "Ratio"
	OutputDays    OutputType = "Days"
)

// Valid reports whether t is one of the declared output types.
func (t OutputType) Valid() bool {
	switch t {
	case OutputValue, OutputPercent, OutputRatio, OutputDays:
		return true
	}
	return false
}

// InputSlot describes one named input of a formula.
type InputSlot struct {
	// Name is the identifier used in the formula text.
	Name string `yaml:"name" json:"name"`
	// Concepts are tried in order. Entries may be internal concept names
	// or taxonomy-qualified identifiers. Empty means [Name].
	Concepts []string `yaml:"concepts,omitempty" json:"concepts,omitempty"`
	// Preferred is a taxonomy identifier tried before the concept map order.
	Preferred string `yaml:"preferred,omitempty" json:"preferred,omitempty"`
	// Optional inputs default to 0 when unresolved.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// CandidateConcepts returns Concepts, or the slot name when none are listed.
func (s InputSlot) CandidateConcepts() []string {
	if len(s.Concepts) == 0 {
		return []string{s.Name}
	}
	out := make([]string, len(s.Concepts))
	copy(out, s.Concepts)
	return out
}

// Definition is an immutable registry entry.
type Definition struct {
	Name       string      `yaml:"name" json:"name"`
	Formula    string      `yaml:"formula" json:"formula"`
	OutputType OutputType  `yaml:"output_type" json:"output_type"`
	Inputs     []InputSlot `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Notes      string      `yaml:"notes,omitempty" json:"notes,omitempty"`

	// ValidateAgainst names a concept whose reported value should match the
	// computed one; used only when a caller asks for cross-validation.
	ValidateAgainst string  `yaml:"validate_against,omitempty" json:"validate_against,omitempty"`
	Tolerance       float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
}

// Slot returns the declared slot for name, if any.
func (d Definition) Slot(name string) (InputSlot, bool) {
	for _, s := range d.Inputs {
		if s.Name == name {
			return s, true
		}
	}
	return InputSlot{}, false
}

func (d Definition) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("metric name cannot be empty")
	}
	if strings.TrimSpace(d.Formula) == "" {
		return fmt.Errorf("metric %s: formula cannot be empty", d.Name)
	}
	if !d.OutputType.Valid() {
		return fmt.Errorf("metric %s: unknown output type %q", d.Name, d.OutputType)
	}
	seen := make(map[string]bool, len(d.Inputs))
	for _, s := range d.Inputs {
		if s.Name == "" {
			return fmt.Errorf("metric %s: input slot without a name", d.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("metric %s: duplicate input slot %s", d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	if d.Tolerance < 0 {
		return fmt.Errorf("metric %s: tolerance must not be negative", d.Name)
	}
	return nil
}

// Registry holds metric definitions by name. It is built once and then
// only read, so it needs no locking.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry validates defs and builds a registry.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("metric: %w", err)
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("metric: duplicate definition %s", d.Name)
		}
		r.defs[d.Name] = d
	}
	return r, nil
}

// Get retrieves a definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns all metric names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of definitions.
func (r *Registry) Count() int {
	return len(r.defs)
}

type registryFile struct {
	Metrics []Definition `yaml:"metrics" json:"metrics"`
}

// ParseYAML decodes a YAML registry document.
func ParseYAML(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("metric: parse yaml: %w", err)
	}
	return NewRegistry(f.Metrics)
}

// ParseJSON decodes a JSON registry document. Hand-edited files with
// comments or trailing commas are accepted (see utils.DecodeLenient).
func ParseJSON(data []byte) (*Registry, error) {
	var f registryFile
	if err := utils.DecodeLenient(data, &f); err != nil {
		return nil, fmt.Errorf("metric: parse json: %w", err)
	}
	return NewRegistry(f.Metrics)
}

// LoadFile loads a registry, choosing the decoder from the extension:
// .yaml/.yml use YAML; .json/.hjson use the lenient JSON decoder.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metric: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json", ".hjson":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("metric: unsupported registry format %s", path)
	}
}

// Default returns the built-in registry.
func Default() (*Registry, error) {
	return ParseYAML(defaultRegistryYAML)
}
