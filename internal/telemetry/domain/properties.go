package telemetry

import (
	"errors"
	"fmt"
	"sort"
)

// SafetyProperties are the static bounds for one signal. Nil fields mean the
// constraint is absent.
type SafetyProperties struct {
	Lower      *float64 `json:"lower" yaml:"lower" toml:"lower"`
	Upper      *float64 `json:"upper" yaml:"upper" toml:"upper"`
	StaleAfter *float64 `json:"stale_after" yaml:"stale_after" toml:"stale_after"`
	Critical   *bool    `json:"critical" yaml:"critical" toml:"critical"`
}

// ErrInvalidBounds indicates lower > upper in a property entry.
var ErrInvalidBounds = errors.New("telemetry: lower bound above upper bound")

// Validate checks the lower <= upper invariant.
func (p SafetyProperties) Validate() error {
	if p.Lower != nil && p.Upper != nil && *p.Lower > *p.Upper {
		return ErrInvalidBounds
	}
	return nil
}

// PropertyTable maps signal names to their safety properties. It is built once
// at start-up and never mutated afterwards.
type PropertyTable struct {
	entries map[string]SafetyProperties
}

// NewPropertyTable validates and freezes the given entries.
func NewPropertyTable(entries map[string]SafetyProperties) (*PropertyTable, error) {
	copied := make(map[string]SafetyProperties, len(entries))
	for name, props := range entries {
		if name == "" {
			return nil, errors.New("telemetry: empty signal name in property table")
		}
		if err := props.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		copied[name] = props
	}
	return &PropertyTable{entries: copied}, nil
}

// Get returns the properties for name. A nil table or unknown name reports false.
func (t *PropertyTable) Get(name string) (SafetyProperties, bool) {
	if t == nil {
		return SafetyProperties{}, false
	}
	props, ok := t.entries[name]
	return props, ok
}

// CriticalSignals lists every signal explicitly marked critical, sorted by name.
func (t *PropertyTable) CriticalSignals() []string {
	if t == nil {
		return nil
	}
	var names []string
	for name, props := range t.entries {
		if props.Critical != nil && *props.Critical {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Names lists every signal in the table, sorted.
func (t *PropertyTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (t *PropertyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Float returns a pointer to v, for building property literals.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for building property literals.
func Bool(v bool) *bool { return &v }
