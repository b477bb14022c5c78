package properties

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	alarmapp "groundstation-safety/internal/alarms/application"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "datatypes.yaml", `
datatypes:
  - name: BrakePressure
    id: 7
    lower: 0
    upper: 200
    stale_after: 1.5
  - name: IPack
    id: 8
    critical: true
fsm_states:
  - state: Boot
    index: 0
  - state: Fault
    index: 13
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	props, ok := c.Table().Get("BrakePressure")
	if !ok || props.Upper == nil || *props.Upper != 200 || props.StaleAfter == nil || *props.StaleAfter != 1.5 {
		t.Fatalf("unexpected props %+v", props)
	}
	if got := c.Table().CriticalSignals(); len(got) != 1 || got[0] != "IPack" {
		t.Fatalf("critical signals %v", got)
	}
	name, err := c.ResolveDatatypeName(context.Background(), 8)
	if err != nil || name != "IPack" {
		t.Fatalf("resolve datatype: %q %v", name, err)
	}
	state, _ := c.ResolveFsmStateName(context.Background(), 13)
	if state != "Fault" {
		t.Fatalf("resolve fsm: %q", state)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "datatypes.toml", `
[[Datatype]]
name = "PPInitFault1"
id = 3
default = 255

[[FsmState]]
state = "Idle"
index = 3
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.Defaults()["PPInitFault1"]; got != 255 {
		t.Fatalf("expected default 255, got %v", got)
	}
	if idx, ok := c.FsmIndex("Idle"); !ok || idx != 3 {
		t.Fatalf("fsm index %d %v", idx, ok)
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(File{Datatypes: []Datatype{{Name: "A", ID: 1}, {Name: "A", ID: 2}}})
	if err == nil {
		t.Fatalf("expected duplicate name error")
	}
	_, err = NewCatalog(File{Datatypes: []Datatype{{Name: "A", ID: 1}, {Name: "B", ID: 1}}})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	_, err = NewCatalog(File{FsmStates: []FsmState{{State: "Boot", Index: 0}, {State: "Idle", Index: 0}}})
	if err == nil {
		t.Fatalf("expected duplicate fsm index error")
	}
}

func TestNewCatalogRejectsInvertedBounds(t *testing.T) {
	lower, upper := 10.0, 1.0
	_, err := NewCatalog(File{Datatypes: []Datatype{{Name: "X", Lower: &lower, Upper: &upper}}})
	if err == nil {
		t.Fatalf("expected bounds error")
	}
}

func TestResolversReturnSentinels(t *testing.T) {
	c := Default()
	ctx := context.Background()
	if name, err := c.ResolveFsmStateName(ctx, 99); err != nil || name != UnknownFsmState {
		t.Fatalf("expected %s, got %q %v", UnknownFsmState, name, err)
	}
	if name, err := c.ResolveDatatypeName(ctx, -1); err != nil || name != UnknownDatatype {
		t.Fatalf("expected %s, got %q %v", UnknownDatatype, name, err)
	}
	var nilCatalog *Catalog
	if name, _ := nilCatalog.ResolveFsmStateName(ctx, 0); name != UnknownFsmState {
		t.Fatalf("nil catalog: %q", name)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	states := c.FsmStates()
	if len(states) != 14 || states[0].State != "Boot" || states[13].State != "Fault" {
		t.Fatalf("unexpected fsm states %v", states)
	}
	defaults := c.Defaults()
	if defaults["FSMTransitionFail"] != 100 || defaults["PPInitFault2"] != 255 {
		t.Fatalf("unexpected defaults")
	}
	props, ok := c.Table().Get("TempMotorRight0")
	if !ok || props.Critical == nil || !*props.Critical {
		t.Fatalf("TempMotorRight0 should be critical")
	}
	if _, ok := c.Table().Get("BrakePressure"); !ok {
		t.Fatalf("BrakePressure missing")
	}
}

func TestDefaultCatalogCoversEngineSignals(t *testing.T) {
	defaults := Default().Defaults()
	names := []string{
		alarmapp.SignalPPInitFault1,
		alarmapp.SignalPPInitFault2,
		alarmapp.SignalPPEmergency1,
		alarmapp.SignalPPEmergency2,
		alarmapp.SignalEmergency,
		alarmapp.SignalEmergencyStaleCriticalData,
		alarmapp.SignalLeviFault,
		alarmapp.SignalLeviFaultDriveNumber,
		alarmapp.SignalFSMTransitionFail,
		alarmapp.SignalFSMState,
		alarmapp.SignalBrakePressure,
		alarmapp.SignalFrontendHeartbeating,
	}
	for _, group := range alarmapp.DefaultConfig().TemperatureGroups {
		names = append(names, group.Signals...)
	}
	for _, name := range names {
		if _, ok := defaults[name]; !ok {
			t.Fatalf("built-in table is missing %s", name)
		}
	}
	if defaults[alarmapp.SignalPPInitFault1] != alarmapp.PropInitFaultIdle {
		t.Fatalf("PPInitFault1 should default to the idle value")
	}
}
