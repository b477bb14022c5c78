package alarms

import (
	"errors"
	"reflect"
	"testing"
)

func TestSourceRegistryIdempotent(t *testing.T) {
	r := NewSourceRegistry()
	r.Add("General")
	r.Add("BMS")
	if r.Add("General") {
		t.Fatalf("duplicate add should report no change")
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"General", "BMS"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestSourceRegistryRemovalDisabledByDefault(t *testing.T) {
	r := NewSourceRegistry()
	r.Add("General")
	if err := r.Remove("General"); !errors.Is(err, ErrRemovalDisabled) {
		t.Fatalf("expected ErrRemovalDisabled, got %v", err)
	}
	if err := r.Clear(); !errors.Is(err, ErrRemovalDisabled) {
		t.Fatalf("expected ErrRemovalDisabled, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("registry should be unchanged")
	}
}

func TestSourceRegistryRemoval(t *testing.T) {
	r := NewSourceRegistry(WithRemoval(true))
	r.Add("A")
	r.Add("B")
	r.Add("C")
	if err := r.Remove("B"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := r.Remove("B"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("unexpected list %v", got)
	}
	if !r.Add("B") {
		t.Fatalf("re-adding a removed source should succeed")
	}
	if err := r.Clear(); err != nil || r.Len() != 0 {
		t.Fatalf("clear: %v len %d", err, r.Len())
	}
}

func TestAckFlag(t *testing.T) {
	var f AckFlag
	if !f.Ready() {
		t.Fatalf("zero value must be ready")
	}
	if !f.TryLatch() || f.TryLatch() {
		t.Fatalf("TryLatch should succeed once")
	}
	f.Reset()
	if !f.Ready() {
		t.Fatalf("reset flag must be ready")
	}
}

func TestLabelTableBounds(t *testing.T) {
	table, err := DefaultLabelTables().Select(DefaultLabelVersion)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	label, err := table.Label(3)
	if err != nil || label != "Levitation" {
		t.Fatalf("expected Levitation, got %q %v", label, err)
	}
	if label, _ := table.Label(9); label != "Wrong EBS State" {
		t.Fatalf("unexpected last label %q", label)
	}
	for _, code := range []int{0, -1, 10, 11} {
		if _, err := table.Label(code); !errors.Is(err, ErrUnknownEmergencyCode) {
			t.Fatalf("code %d: expected ErrUnknownEmergencyCode, got %v", code, err)
		}
	}
}

func TestLabelTablesSelect(t *testing.T) {
	tables := DefaultLabelTables()
	v1, err := tables.Select("v1")
	if err != nil {
		t.Fatalf("select v1: %v", err)
	}
	if _, err := v1.Label(9); !errors.Is(err, ErrUnknownEmergencyCode) {
		t.Fatalf("v1 has fewer labels, got %v", err)
	}
	if _, err := tables.Select("v9"); !errors.Is(err, ErrInvalidLabelTable) {
		t.Fatalf("expected ErrInvalidLabelTable, got %v", err)
	}
	tables["empty"] = LabelTable{}
	if _, err := tables.Select("empty"); !errors.Is(err, ErrInvalidLabelTable) {
		t.Fatalf("expected ErrInvalidLabelTable for empty table, got %v", err)
	}
}

func TestFaultBits(t *testing.T) {
	got := FaultBits(0b1010, []string{"a", "b", "c"})
	if !reflect.DeepEqual(got, []string{"b", "fault bit 3"}) {
		t.Fatalf("unexpected bits %v", got)
	}
	if FaultBits(0, nil) != nil {
		t.Fatalf("expected no bits")
	}
}
