package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	alarms "groundstation-safety/internal/alarms/domain"
	telemetryapp "groundstation-safety/internal/telemetry/application"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

type recorder struct {
	mu    sync.Mutex
	notes []alarms.Notification
}

func (r *recorder) Notify(_ context.Context, n alarms.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) byCondition(condition string) []alarms.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alarms.Notification
	for _, n := range r.notes {
		if n.Condition == condition {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

type stubCommands struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubCommands) SendCommand(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.err
}

func (s *stubCommands) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubResolver struct {
	states    map[int]string
	datatypes map[int]string
	err       error
}

func (s stubResolver) ResolveFsmStateName(_ context.Context, index int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if name, ok := s.states[index]; ok {
		return name, nil
	}
	return UnknownFsmState, nil
}

func (s stubResolver) ResolveDatatypeName(_ context.Context, id int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if name, ok := s.datatypes[id]; ok {
		return name, nil
	}
	return UnknownDatatype, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store    *telemetryapp.SignalStore
	engine   *Engine
	notes    *recorder
	commands *stubCommands
	registry *alarms.SourceRegistry
	clock    *testClock
}

func newHarness(t *testing.T, resolver stubResolver, opts ...Option) *harness {
	t.Helper()
	table, err := telemetry.NewPropertyTable(map[string]telemetry.SafetyProperties{
		"IPack":         {Lower: telemetry.Float(-50), Upper: telemetry.Float(100), StaleAfter: telemetry.Float(5), Critical: telemetry.Bool(true)},
		"BrakePressure": {Lower: telemetry.Float(0), Upper: telemetry.Float(200)},
	})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	store := telemetryapp.NewSignalStore(map[string]float64{
		SignalPPInitFault1:      PropInitFaultIdle,
		SignalPPInitFault2:      PropInitFaultIdle,
		SignalFSMTransitionFail: 100,
		SignalFSMState:          7,
	})
	h := &harness{
		store:    store,
		notes:    &recorder{},
		commands: &stubCommands{},
		registry: alarms.NewSourceRegistry(),
		clock:    &testClock{now: time.Unix(100, 0)},
	}
	opts = append([]Option{WithRegistry(h.registry), WithClock(h.clock)}, opts...)
	engine, err := NewEngine(store, table, h.notes, h.commands, resolver, opts...)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(engine.Stop)
	h.engine = engine
	return h
}

func TestTemperatureGroupSharesOneFlag(t *testing.T) {
	h := newHarness(t, stubResolver{})

	h.store.Update("TempMotorLeft2", 61, 1)
	left := h.notes.byCondition("temperature.motor_left")
	if len(left) != 1 {
		t.Fatalf("expected 1 left motor notification, got %d", len(left))
	}
	if left[0].Message != "Temperature on the left motor is too high!" {
		t.Fatalf("unexpected message %q", left[0].Message)
	}

	h.store.Update("TempMotorLeft5", 65, 2)
	if got := len(h.notes.byCondition("temperature.motor_left")); got != 1 {
		t.Fatalf("expected latched group, got %d notifications", got)
	}

	if err := h.engine.Dismiss(context.Background(), left[0].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	h.store.Update("TempMotorLeft5", 65, 3)
	if got := len(h.notes.byCondition("temperature.motor_left")); got != 2 {
		t.Fatalf("expected new notification after dismissal, got %d", got)
	}
}

func TestTemperatureThresholdInclusive(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update("TempEMS3", 59.9, 1)
	if h.notes.count() != 0 {
		t.Fatalf("expected no notification below threshold")
	}
	h.store.Update("TempEMS3", 60, 2)
	if got := len(h.notes.byCondition("temperature.ems")); got != 1 {
		t.Fatalf("expected EMS notification at 60, got %d", got)
	}
	if got := len(h.notes.byCondition("temperature.hems")); got != 0 {
		t.Fatalf("HEMS group should be independent, got %d", got)
	}
}

func TestBrakePressureSequence(t *testing.T) {
	h := newHarness(t, stubResolver{})
	for _, p := range []float64{40, 28, 15, 9, 13} {
		h.store.Update(SignalBrakePressure, p, 1)
	}
	if got := len(h.notes.byCondition("brake.leak")); got != 1 {
		t.Fatalf("expected 1 leak warning, got %d", got)
	}
	if got := len(h.notes.byCondition("brake.warning")); got != 1 {
		t.Fatalf("expected 1 level warning, got %d", got)
	}
	critical := h.notes.byCondition("brake.critical")
	if len(critical) != 1 {
		t.Fatalf("expected 1 critical, got %d", len(critical))
	}
	if critical[0].Dismissable {
		t.Fatalf("critical brake notification must not be dismissable")
	}
	if h.commands.count() != 1 || h.commands.calls[0] != "EmergencyBrake" {
		t.Fatalf("expected one emergency brake command, got %v", h.commands.calls)
	}
	if err := h.engine.Dismiss(context.Background(), critical[0].ID); !errors.Is(err, alarms.ErrNotDismissable) {
		t.Fatalf("expected ErrNotDismissable, got %v", err)
	}

	h.store.Update(SignalBrakePressure, 8, 2)
	if got := len(h.notes.byCondition("brake.critical")); got != 2 {
		t.Fatalf("expected critical to re-arm after recovery above 12, got %d", got)
	}
	if h.commands.count() != 2 {
		t.Fatalf("expected second command, got %d", h.commands.count())
	}
}

func TestBrakeCriticalOncePerExcursion(t *testing.T) {
	h := newHarness(t, stubResolver{})
	for i := 0; i < 10; i++ {
		h.store.Update(SignalBrakePressure, 9, float64(i))
		h.store.Update(SignalBrakePressure, 11, float64(i))
	}
	if got := len(h.notes.byCondition("brake.critical")); got != 1 {
		t.Fatalf("expected 1 critical while oscillating, got %d", got)
	}
	if h.commands.count() != 1 {
		t.Fatalf("expected 1 command, got %d", h.commands.count())
	}
}

func TestBrakeRulesSuppressedWhenDeploymentExpected(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update(SignalFSMState, 3, 1)
	h.store.Update(SignalBrakePressure, 40, 1)
	if got := len(h.notes.byCondition("brake.should_be_deployed")); got != 1 {
		t.Fatalf("expected should-be-deployed notification, got %d", got)
	}
	h.store.Update(SignalBrakePressure, 0.5, 2)
	if got := len(h.notes.byCondition("brake.critical")); got != 0 {
		t.Fatalf("no critical expected in Idle, got %d", got)
	}
	if got := len(h.notes.byCondition("brake.deployed")); got != 1 {
		t.Fatalf("expected deployed notice, got %d", got)
	}
	if h.commands.count() != 0 {
		t.Fatalf("expected no commands, got %d", h.commands.count())
	}
	if status := h.engine.Brake(); status.EBSState != EBSTriggered || !status.ShouldBeDeployed {
		t.Fatalf("unexpected brake status %+v", status)
	}
}

func TestBrakeCommandFailureKeepsLatch(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.commands.err = errors.New("link down")

	h.store.Update(SignalBrakePressure, 5, 1)
	failed := h.notes.byCondition("command.failed")
	if len(failed) != 1 || failed[0].Severity != alarms.SeverityWarning {
		t.Fatalf("expected one warning about the failed command, got %+v", failed)
	}
	if !strings.Contains(failed[0].Message, "link down") {
		t.Fatalf("expected error text in message, got %q", failed[0].Message)
	}
	h.store.Update(SignalBrakePressure, 4, 2)
	if got := len(h.notes.byCondition("brake.critical")); got != 1 {
		t.Fatalf("critical must stay latched after a failed command, got %d", got)
	}
	if !h.engine.Brake().EmergencyActive {
		t.Fatalf("expected emergency active")
	}
}

func TestEmergencyCodeLabel(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update(SignalEmergency, 3, 1)

	modal := h.notes.byCondition("emergency.general")
	if len(modal) != 1 {
		t.Fatalf("expected 1 emergency modal, got %d", len(modal))
	}
	if modal[0].Kind != alarms.KindModal || !strings.Contains(modal[0].Message, "Levitation") {
		t.Fatalf("unexpected modal %+v", modal[0])
	}
	if modal[0].Title != "Levitation Emergency!" {
		t.Fatalf("unexpected title %q", modal[0].Title)
	}
	if sources := h.engine.ActiveEmergencySources(); len(sources) != 1 || sources[0] != "Levitation" {
		t.Fatalf("unexpected sources %v", sources)
	}
}

func TestEmergencyCodeOutOfRange(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update(SignalEmergency, 11, 1)

	if got := len(h.notes.byCondition("emergency.general")); got != 0 {
		t.Fatalf("out of range code must not produce an emergency modal")
	}
	invalid := h.notes.byCondition("emergency.invalid_code")
	if len(invalid) != 1 {
		t.Fatalf("expected internal error notification, got %d", len(invalid))
	}
	if !strings.Contains(invalid[0].Message, alarms.ErrUnknownEmergencyCode.Error()) {
		t.Fatalf("unexpected message %q", invalid[0].Message)
	}
	if len(h.engine.ActiveEmergencySources()) != 0 {
		t.Fatalf("no source expected for an invalid code")
	}

	h.store.Update(SignalEmergency, 2.5, 2)
	if got := len(h.notes.byCondition("emergency.invalid_code")); got != 1 {
		t.Fatalf("invalid code flag should stay latched, got %d", got)
	}
}

func TestPropEmergencyDedupe(t *testing.T) {
	h := newHarness(t, stubResolver{})
	for i := 0; i < 5; i++ {
		h.store.Update(SignalPPEmergency1, 4, float64(i))
	}
	notes := h.notes.byCondition("propulsion.emergency_1")
	if len(notes) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(notes))
	}
	if notes[0].Message != "Prop Emergency 1: 4" {
		t.Fatalf("unexpected message %q", notes[0].Message)
	}
	if sources := h.engine.ActiveEmergencySources(); len(sources) != 1 || sources[0] != "Propulsion Motor 1" {
		t.Fatalf("unexpected sources %v", sources)
	}

	if err := h.engine.Dismiss(context.Background(), notes[0].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if err := h.engine.Dismiss(context.Background(), notes[0].ID); err != nil {
		t.Fatalf("second dismiss should be a no-op, got %v", err)
	}
	h.store.Update(SignalPPEmergency1, 4, 10)
	if got := len(h.notes.byCondition("propulsion.emergency_1")); got != 2 {
		t.Fatalf("expected re-notification after dismissal, got %d", got)
	}
	if len(h.engine.ActiveEmergencySources()) != 1 {
		t.Fatalf("registry must stay deduplicated")
	}
}

func TestPropInitFaultIgnoresIdleValue(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update(SignalPPInitFault2, PropInitFaultIdle, 1)
	if h.notes.count() != 0 {
		t.Fatalf("idle value must not notify")
	}
	h.store.Update(SignalPPInitFault2, 3, 2)
	notes := h.notes.byCondition("propulsion.init_fault_2")
	if len(notes) != 1 || notes[0].Message != "PropInitFault 2: 3" {
		t.Fatalf("unexpected notifications %+v", notes)
	}
}

func TestTransitionFailLookup(t *testing.T) {
	h := newHarness(t, stubResolver{states: map[int]string{13: "Fault"}})

	h.store.Update(SignalFSMTransitionFail, 100, 1)
	h.engine.Wait()
	if h.notes.count() != 0 {
		t.Fatalf("unknown state must be dropped")
	}

	h.store.Update(SignalFSMTransitionFail, 13, 2)
	h.engine.Wait()
	notes := h.notes.byCondition("fsm.transition_failed")
	if len(notes) != 1 || notes[0].Message != "Transition to state Fault failed!" {
		t.Fatalf("unexpected notifications %+v", notes)
	}
}

func TestLookupErrorDropsUpdate(t *testing.T) {
	h := newHarness(t, stubResolver{err: errors.New("backend unavailable")})
	h.store.Update(SignalEmergencyStaleCriticalData, 5, 1)
	h.store.Update(SignalFSMTransitionFail, 13, 1)
	h.engine.Wait()
	if h.notes.count() != 0 {
		t.Fatalf("expected lookups to be dropped, got %d notifications", h.notes.count())
	}
}

func TestStaleCriticalDatatypes(t *testing.T) {
	h := newHarness(t, stubResolver{datatypes: map[int]string{5: "IPack", 6: "BMSVoltageHigh"}})

	h.store.Update(SignalEmergencyStaleCriticalData, 5, 1)
	h.engine.Wait()
	h.store.Update(SignalEmergencyStaleCriticalData, 5, 2)
	h.engine.Wait()
	notes := h.notes.byCondition("emergency.stale_critical_data")
	if len(notes) != 1 {
		t.Fatalf("expected 1 stale modal, got %d", len(notes))
	}
	if !strings.HasPrefix(notes[0].Message, "IPack has been stale") {
		t.Fatalf("unexpected body %q", notes[0].Message)
	}

	h.store.Update(SignalEmergencyStaleCriticalData, 6, 3)
	h.engine.Wait()
	notes = h.notes.byCondition("emergency.stale_critical_data")
	if len(notes) != 2 || !strings.HasPrefix(notes[1].Message, "IPack, BMSVoltageHigh have been stale") {
		t.Fatalf("unexpected notifications %+v", notes)
	}

	h.store.Update(SignalEmergencyStaleCriticalData, 9, 4)
	h.engine.Wait()
	want := []string{"IPack Stale", "BMSVoltageHigh Stale"}
	got := h.engine.ActiveEmergencySources()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected sources %v, got %v", want, got)
	}
}

func TestLeviFault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LeviFaultLabels = []string{"Overcurrent", "Overvoltage"}
	h := newHarness(t, stubResolver{}, WithConfig(cfg))

	h.store.Update(SignalLeviFaultDriveNumber, 4, 1)
	h.store.Update(SignalLeviFault, 5, 1)
	notes := h.notes.byCondition("levitation.fault")
	if len(notes) != 1 {
		t.Fatalf("expected 1 levi modal, got %d", len(notes))
	}
	want := "Levitation drive 4 signaled a fault with message: Overcurrent, fault bit 2"
	if notes[0].Message != want || notes[0].Title != "Levi Fault!" {
		t.Fatalf("unexpected modal %+v", notes[0])
	}
	if sources := h.engine.ActiveEmergencySources(); len(sources) != 1 || sources[0] != "Levi drive 4: Overcurrent, fault bit 2" {
		t.Fatalf("unexpected sources %v", sources)
	}
}

func TestCriticalSignalEmergency(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update("IPack", 150, 99)
	h.store.Update("IPack", 160, 99.5)
	notes := h.notes.byCondition("critical.IPack")
	if len(notes) != 1 || notes[0].Severity != alarms.SeverityCritical {
		t.Fatalf("unexpected notifications %+v", notes)
	}
	if sources := h.engine.ActiveEmergencySources(); len(sources) != 1 || sources[0] != "IPack out of range" {
		t.Fatalf("unexpected sources %v", sources)
	}
	h.store.Update("BrakePressure", 500, 99)
	if got := len(h.notes.byCondition("critical.BrakePressure")); got != 0 {
		t.Fatalf("non-critical signal must never escalate")
	}
}

func TestSweepStaleDetectsSilentSignal(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.engine.SweepStale(context.Background())
	if h.notes.count() != 0 {
		t.Fatalf("signals without data must not be swept")
	}

	h.store.Update("IPack", 10, 99)
	if h.notes.count() != 0 {
		t.Fatalf("fresh in-range reading must not notify")
	}
	h.engine.SweepStale(context.Background())
	if h.notes.count() != 0 {
		t.Fatalf("fresh reading must survive the sweep")
	}
	h.clock.Advance(10 * time.Second)
	h.engine.SweepStale(context.Background())
	notes := h.notes.byCondition("critical.IPack")
	if len(notes) != 1 {
		t.Fatalf("expected stale notification, got %d", len(notes))
	}
	if sources := h.engine.ActiveEmergencySources(); len(sources) != 1 || sources[0] != "IPack Stale" {
		t.Fatalf("unexpected sources %v", sources)
	}
}

func TestDismissUnknown(t *testing.T) {
	h := newHarness(t, stubResolver{})
	if err := h.engine.Dismiss(context.Background(), "missing"); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenListsUndismissed(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update("TempHEMS1", 70, 1)
	h.store.Update(SignalPPEmergency2, 1, 1)
	open := h.engine.Open()
	if len(open) != 2 {
		t.Fatalf("expected 2 open notifications, got %d", len(open))
	}
	if err := h.engine.Dismiss(context.Background(), open[0].ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if got := len(h.engine.Open()); got != 1 {
		t.Fatalf("expected 1 open notification, got %d", got)
	}
}

func TestDismissedNotificationsAreReleased(t *testing.T) {
	h := newHarness(t, stubResolver{})
	ctx := context.Background()
	for i := 0; i < closedLimit+50; i++ {
		h.store.Update("TempMotorLeft2", 61, float64(i))
		notes := h.notes.byCondition("temperature.motor_left")
		if len(notes) != i+1 {
			t.Fatalf("round %d: expected %d notifications, got %d", i, i+1, len(notes))
		}
		if err := h.engine.Dismiss(ctx, notes[i].ID); err != nil {
			t.Fatalf("round %d: dismiss: %v", i, err)
		}
	}

	h.engine.mu.Lock()
	open, closed := len(h.engine.pending), len(h.engine.closed.order)
	h.engine.mu.Unlock()
	if open != 0 {
		t.Fatalf("expected no retained open notifications, got %d", open)
	}
	if closed > closedLimit {
		t.Fatalf("closed ids should stay bounded at %d, got %d", closedLimit, closed)
	}

	last := h.notes.byCondition("temperature.motor_left")
	if err := h.engine.Dismiss(ctx, last[len(last)-1].ID); err != nil {
		t.Fatalf("second dismiss should be a no-op, got %v", err)
	}
}

type dismissRecorder struct {
	mu    sync.Mutex
	notes []alarms.Notification
}

func (d *dismissRecorder) NotificationDismissed(_ context.Context, n alarms.Notification, _ time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, n)
}

func (d *dismissRecorder) conditions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.notes))
	for _, n := range d.notes {
		out = append(out, n.Condition)
	}
	return out
}

func TestBrakeRecoveryClosesCritical(t *testing.T) {
	listener := &dismissRecorder{}
	h := newHarness(t, stubResolver{}, WithDismissListener(listener))
	h.store.Update(SignalBrakePressure, 40, 1)
	h.store.Update(SignalBrakePressure, 9, 2)
	critical := h.notes.byCondition("brake.critical")
	if len(critical) != 1 || !h.engine.IsOpen(critical[0].ID) {
		t.Fatalf("expected one open critical, got %v", critical)
	}

	h.store.Update(SignalBrakePressure, 13, 3)
	if h.engine.IsOpen(critical[0].ID) {
		t.Fatalf("critical should close once pressure recovers")
	}
	got := listener.conditions()
	if len(got) != 1 || got[0] != "brake.critical" {
		t.Fatalf("expected the recovery close to reach the listener, got %v", got)
	}
	h.store.Update(SignalBrakePressure, 14, 4)
	if got := listener.conditions(); len(got) != 1 {
		t.Fatalf("recovery close must be reported once, got %v", got)
	}
	if err := h.engine.Dismiss(context.Background(), critical[0].ID); err != nil {
		t.Fatalf("dismissing a resolved notification should be a no-op, got %v", err)
	}
}

func TestClearEmergencySourcesRequiresRemoval(t *testing.T) {
	h := newHarness(t, stubResolver{})
	h.store.Update(SignalPPEmergency1, 1, 1)
	if err := h.engine.ClearEmergencySources(); !errors.Is(err, alarms.ErrRemovalDisabled) {
		t.Fatalf("expected ErrRemovalDisabled, got %v", err)
	}

	registry := alarms.NewSourceRegistry(alarms.WithRemoval(true))
	h2 := newHarness(t, stubResolver{}, WithRegistry(registry))
	h2.store.Update(SignalPPEmergency1, 1, 1)
	if err := h2.engine.ClearEmergencySources(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(h2.engine.ActiveEmergencySources()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestNewEngineValidates(t *testing.T) {
	store := telemetryapp.NewSignalStore(nil)
	table, _ := telemetry.NewPropertyTable(nil)
	if _, err := NewEngine(nil, table, &recorder{}, &stubCommands{}, stubResolver{}); err == nil {
		t.Fatalf("expected nil store error")
	}
	if _, err := NewEngine(store, table, nil, &stubCommands{}, stubResolver{}); err == nil {
		t.Fatalf("expected nil notifier error")
	}
	cfg := DefaultConfig()
	cfg.Labels = alarms.LabelTable{}
	if _, err := NewEngine(store, table, &recorder{}, &stubCommands{}, stubResolver{}, WithConfig(cfg)); err == nil {
		t.Fatalf("expected config error")
	}
}
