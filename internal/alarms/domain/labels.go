package alarms

import (
	"fmt"
	"sort"
)

// DefaultLabelVersion names the built-in emergency label table.
const DefaultLabelVersion = "v2"

// LabelTable maps an emergency source code to its label. Code 1 is the first
// label.
type LabelTable struct {
	Version string   `yaml:"version" json:"version"`
	Labels  []string `yaml:"labels" json:"labels"`
}

// Label returns the label for code or an error wrapping
// ErrUnknownEmergencyCode.
func (t LabelTable) Label(code int) (string, error) {
	if code < 1 || code > len(t.Labels) {
		return "", fmt.Errorf("%w: code %d not in table %s (1..%d)", ErrUnknownEmergencyCode, code, t.Version, len(t.Labels))
	}
	return t.Labels[code-1], nil
}

// LabelTables holds every known table generation.
type LabelTables map[string]LabelTable

// DefaultLabelTables returns the built-in generations. v1 is the early
// five-entry table, v2 the current nine-entry one.
func DefaultLabelTables() LabelTables {
	return LabelTables{
		"v1": {Version: "v1", Labels: []string{
			"General", "Propulsion", "Levitation", "BMS", "Disconnection",
		}},
		"v2": {Version: "v2", Labels: []string{
			"General",
			"Propulsion",
			"Levitation",
			"Powertrain Controller",
			"BMS",
			"SenseCon",
			"SensorHub",
			"Disconnection",
			"Wrong EBS State",
		}},
	}
}

// Select returns the table for version.
func (ts LabelTables) Select(version string) (LabelTable, error) {
	table, ok := ts[version]
	if !ok {
		versions := make([]string, 0, len(ts))
		for v := range ts {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		return LabelTable{}, fmt.Errorf("%w: version %q not in %v", ErrInvalidLabelTable, version, versions)
	}
	if len(table.Labels) == 0 {
		return LabelTable{}, fmt.Errorf("%w: version %q is empty", ErrInvalidLabelTable, version)
	}
	if table.Version == "" {
		table.Version = version
	}
	return table, nil
}

// FaultBits lists the set bits of a levitation fault word with their labels.
// Bits without a label are named "fault bit N".
func FaultBits(word uint64, labels []string) []string {
	var out []string
	for bit := 0; bit < 64; bit++ {
		if word&(1<<uint(bit)) == 0 {
			continue
		}
		if bit < len(labels) && labels[bit] != "" {
			out = append(out, labels[bit])
			continue
		}
		out = append(out, fmt.Sprintf("fault bit %d", bit))
	}
	return out
}
