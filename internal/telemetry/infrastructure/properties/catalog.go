package properties

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	telemetry "groundstation-safety/internal/telemetry/domain"
)

const (
	// UnknownFsmState is returned for FSM indices missing from the catalog.
	UnknownFsmState = "UnknownState"
	// UnknownDatatype is returned for datatype ids missing from the catalog.
	UnknownDatatype = "UnknownDatatype"
)

// Datatype is one entry of the vehicle datatype configuration.
type Datatype struct {
	Name       string   `yaml:"name" toml:"name"`
	ID         int      `yaml:"id" toml:"id"`
	Lower      *float64 `yaml:"lower" toml:"lower"`
	Upper      *float64 `yaml:"upper" toml:"upper"`
	StaleAfter *float64 `yaml:"stale_after" toml:"stale_after"`
	Critical   *bool    `yaml:"critical" toml:"critical"`
	Default    float64  `yaml:"default" toml:"default"`
}

// FsmState names one operating-mode index.
type FsmState struct {
	State string `yaml:"state" toml:"state"`
	Index int    `yaml:"index" toml:"index"`
}

// File is the on-disk shape of a datatype configuration.
type File struct {
	Datatypes []Datatype `yaml:"datatypes" toml:"Datatype"`
	FsmStates []FsmState `yaml:"fsm_states" toml:"FsmState"`
}

// Catalog is the loaded, immutable view of the datatype configuration.
type Catalog struct {
	table     *telemetry.PropertyTable
	defaults  map[string]float64
	datatypes map[int]string
	fsm       map[int]string
	fsmByName map[string]int
}

// Load reads a datatype configuration. The format is chosen by extension:
// .toml for TOML, anything else is parsed as YAML.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("properties: empty path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &file); err != nil {
			return nil, fmt.Errorf("properties: decode toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("properties: decode yaml: %w", err)
		}
	}
	return NewCatalog(file)
}

// NewCatalog validates a decoded file.
func NewCatalog(file File) (*Catalog, error) {
	entries := make(map[string]telemetry.SafetyProperties, len(file.Datatypes))
	c := &Catalog{
		defaults:  make(map[string]float64, len(file.Datatypes)),
		datatypes: make(map[int]string, len(file.Datatypes)),
		fsm:       make(map[int]string, len(file.FsmStates)),
		fsmByName: make(map[string]int, len(file.FsmStates)),
	}
	for _, dt := range file.Datatypes {
		if dt.Name == "" {
			return nil, errors.New("properties: datatype without name")
		}
		if _, dup := entries[dt.Name]; dup {
			return nil, fmt.Errorf("properties: duplicate datatype %s", dt.Name)
		}
		if existing, dup := c.datatypes[dt.ID]; dup && dt.ID != 0 {
			return nil, fmt.Errorf("properties: datatype id %d used by %s and %s", dt.ID, existing, dt.Name)
		}
		entries[dt.Name] = telemetry.SafetyProperties{
			Lower:      dt.Lower,
			Upper:      dt.Upper,
			StaleAfter: dt.StaleAfter,
			Critical:   dt.Critical,
		}
		c.defaults[dt.Name] = dt.Default
		if dt.ID != 0 {
			c.datatypes[dt.ID] = dt.Name
		}
	}
	for _, st := range file.FsmStates {
		if st.State == "" {
			return nil, errors.New("properties: fsm state without name")
		}
		if existing, dup := c.fsm[st.Index]; dup {
			return nil, fmt.Errorf("properties: fsm index %d used by %s and %s", st.Index, existing, st.State)
		}
		c.fsm[st.Index] = st.State
		c.fsmByName[st.State] = st.Index
	}
	table, err := telemetry.NewPropertyTable(entries)
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	c.table = table
	return c, nil
}

// Table returns the safety property table.
func (c *Catalog) Table() *telemetry.PropertyTable {
	if c == nil {
		return nil
	}
	return c.table
}

// Defaults returns the start-up value of every known signal.
func (c *Catalog) Defaults() map[string]float64 {
	if c == nil {
		return nil
	}
	out := make(map[string]float64, len(c.defaults))
	for name, value := range c.defaults {
		out[name] = value
	}
	return out
}

// FsmIndex returns the index of a named operating mode.
func (c *Catalog) FsmIndex(state string) (int, bool) {
	if c == nil {
		return 0, false
	}
	index, ok := c.fsmByName[state]
	return index, ok
}

// FsmStates lists the known modes ordered by index.
func (c *Catalog) FsmStates() []FsmState {
	if c == nil {
		return nil
	}
	out := make([]FsmState, 0, len(c.fsm))
	for index, state := range c.fsm {
		out = append(out, FsmState{State: state, Index: index})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ResolveFsmStateName maps an FSM index to its name, or UnknownFsmState.
func (c *Catalog) ResolveFsmStateName(_ context.Context, index int) (string, error) {
	if c == nil {
		return UnknownFsmState, nil
	}
	if state, ok := c.fsm[index]; ok {
		return state, nil
	}
	return UnknownFsmState, nil
}

// ResolveDatatypeName maps a datatype id to its name, or UnknownDatatype.
func (c *Catalog) ResolveDatatypeName(_ context.Context, id int) (string, error) {
	if c == nil {
		return UnknownDatatype, nil
	}
	if name, ok := c.datatypes[id]; ok {
		return name, nil
	}
	return UnknownDatatype, nil
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := NewCatalog(File{Datatypes: defaultDatatypes, FsmStates: defaultFsmStates})
	if err != nil {
		panic(fmt.Sprintf("properties: built-in table invalid: %v", err))
	}
	return c
}
