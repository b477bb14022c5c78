package telemetry

import (
	"errors"
	"math"
	"testing"
)

func scenarioProps() SafetyProperties {
	return SafetyProperties{Upper: Float(80), StaleAfter: Float(5), Critical: Bool(true)}
}

func TestClassifyOutOfRangeCritical(t *testing.T) {
	got := Classify(scenarioProps(), 85, 0, 1)
	want := ClassificationResult{OutOfRange: true, IsStale: false, IsCritical: true, IsEmergency: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestClassifyStaleCritical(t *testing.T) {
	got := Classify(scenarioProps(), 50, 0, 10)
	want := ClassificationResult{OutOfRange: false, IsStale: true, IsCritical: true, IsEmergency: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestClassifyStaleBoundaryIsExclusive(t *testing.T) {
	got := Classify(scenarioProps(), 50, 0, 5)
	if got.IsStale {
		t.Fatalf("age equal to stale_after must not be stale")
	}
}

func TestClassifyLowerBound(t *testing.T) {
	props := SafetyProperties{Lower: Float(10)}
	if !Classify(props, 9.99, 0, 0).OutOfRange {
		t.Fatalf("expected value below lower bound to be out of range")
	}
	if Classify(props, 10, 0, 0).OutOfRange {
		t.Fatalf("lower bound is inclusive")
	}
}

func TestClassifyNonCriticalNeverEmergency(t *testing.T) {
	props := SafetyProperties{Upper: Float(1), StaleAfter: Float(1), Critical: Bool(false)}
	got := Classify(props, 100, 0, 100)
	if !got.OutOfRange || !got.IsStale {
		t.Fatalf("expected out of range and stale, got %+v", got)
	}
	if got.IsCritical || got.IsEmergency {
		t.Fatalf("non-critical signal must not be emergency, got %+v", got)
	}
}

func TestClassifyAbsentCriticalIsFalse(t *testing.T) {
	props := SafetyProperties{Upper: Float(1)}
	if Classify(props, 2, 0, 0).IsCritical {
		t.Fatalf("absent critical flag must classify as not critical")
	}
}

func TestClassifyNamedUnknownSignal(t *testing.T) {
	table, err := NewPropertyTable(map[string]SafetyProperties{"X": scenarioProps()})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	got := ClassifyNamed(table, "Nope", 1e9, -1, 1e9)
	if got != (ClassificationResult{}) {
		t.Fatalf("expected all false for unknown signal, got %+v", got)
	}
	if got := ClassifyNamed(nil, "X", 85, 0, 1); got != (ClassificationResult{}) {
		t.Fatalf("expected all false for nil table, got %+v", got)
	}
}

func TestClassifyTotalAndEmergencyImpliesCritical(t *testing.T) {
	values := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1e12, -1, 0, 50, 80, 80.0001, 1e12}
	stamps := []float64{math.NaN(), -100, 0, 3, 1e9}
	nows := []float64{math.NaN(), -5, 0, 1, 10, 1e9}
	propsList := []SafetyProperties{
		{},
		scenarioProps(),
		{Lower: Float(-1), Upper: Float(1), Critical: Bool(false)},
		{StaleAfter: Float(0), Critical: Bool(true)},
	}
	for _, props := range propsList {
		for _, v := range values {
			for _, ts := range stamps {
				for _, now := range nows {
					got := Classify(props, v, ts, now)
					if got.IsEmergency && !got.IsCritical {
						t.Fatalf("emergency without critical for v=%v ts=%v now=%v", v, ts, now)
					}
					if got.IsEmergency != (got.IsCritical && (got.OutOfRange || got.IsStale)) {
						t.Fatalf("emergency formula violated: %+v", got)
					}
					if again := Classify(props, v, ts, now); again != got {
						t.Fatalf("classify not deterministic: %+v vs %+v", got, again)
					}
				}
			}
		}
	}
}

func TestNewPropertyTableRejectsInvertedBounds(t *testing.T) {
	_, err := NewPropertyTable(map[string]SafetyProperties{
		"Bad": {Lower: Float(10), Upper: Float(1)},
	})
	if !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("expected ErrInvalidBounds, got %v", err)
	}
}

func TestCriticalSignalsSorted(t *testing.T) {
	table, err := NewPropertyTable(map[string]SafetyProperties{
		"b": {Critical: Bool(true)},
		"a": {Critical: Bool(true)},
		"c": {Critical: Bool(false)},
		"d": {},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	got := table.CriticalSignals()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected critical signals: %v", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := TimeOf(1700000000.5)
	if got := Seconds(at); got != 1700000000.5 {
		t.Fatalf("expected 1700000000.5, got %v", got)
	}
	if !TimeOf(math.NaN()).IsZero() {
		t.Fatalf("expected zero time for NaN")
	}
}
