package application

import alarms "groundstation-safety/internal/alarms/domain"

// Brake pressure thresholds in bar.
const (
	brakeCriticalBelow = 10.0
	brakeCriticalReset = 12.0
	brakeWarningBelow  = 30.0
	brakeWarningReset  = 32.0
	brakeDeployedBelow = 1.0
	brakeEBSArmedAbove = 30.0
)

// BrakeEvent is a brake rule that fired on an update.
type BrakeEvent int

const (
	BrakeCritical BrakeEvent = iota + 1
	BrakeWarning
	BrakeLeak
	BrakeDeployed
	BrakeFault
	BrakeShouldBeDeployed
)

func (e BrakeEvent) String() string {
	switch e {
	case BrakeCritical:
		return "brake.critical"
	case BrakeWarning:
		return "brake.warning"
	case BrakeLeak:
		return "brake.leak"
	case BrakeDeployed:
		return "brake.deployed"
	case BrakeFault:
		return "brake.fault"
	case BrakeShouldBeDeployed:
		return "brake.should_be_deployed"
	default:
		return "brake.unknown"
	}
}

// EBS states reported by BrakeMonitor.EBSState.
const (
	EBSArmed     = "armed"
	EBSTriggered = "triggered"
)

// BrakeMonitor is the brake pressure hysteresis state machine. Each rule has
// its own flag so several can be latched at once. It is not safe for
// concurrent use; the engine serializes access.
type BrakeMonitor struct {
	deployedModes map[int]struct{}

	mode      int
	modeKnown bool

	seen         bool
	lastPressure float64

	critical         alarms.AckFlag
	warning          alarms.AckFlag
	leak             alarms.AckFlag
	deployed         alarms.AckFlag
	fault            alarms.AckFlag
	shouldBeDeployed alarms.AckFlag

	emergencyActive bool
}

// NewBrakeMonitor constructs a monitor for the given deployed-mode indices.
func NewBrakeMonitor(deployedModes []int) *BrakeMonitor {
	m := &BrakeMonitor{deployedModes: make(map[int]struct{}, len(deployedModes))}
	for _, mode := range deployedModes {
		m.deployedModes[mode] = struct{}{}
	}
	return m
}

// SetMode records the vehicle's current FSM state index.
func (m *BrakeMonitor) SetMode(index int) {
	m.mode = index
	m.modeKnown = true
}

// ShouldBeDeployed reports whether the current mode expects deployed brakes.
func (m *BrakeMonitor) ShouldBeDeployed() bool {
	if !m.modeKnown {
		return false
	}
	_, ok := m.deployedModes[m.mode]
	return ok
}

// EmergencyActive reports whether the critical rule is latched.
func (m *BrakeMonitor) EmergencyActive() bool {
	return m.emergencyActive
}

// LastPressure returns the last observed pressure.
func (m *BrakeMonitor) LastPressure() (float64, bool) {
	return m.lastPressure, m.seen
}

// EBSState reports armed while the last pressure is above 30 bar.
func (m *BrakeMonitor) EBSState() string {
	if m.seen && m.lastPressure > brakeEBSArmedAbove {
		return EBSArmed
	}
	return EBSTriggered
}

// Observe evaluates every rule against a new pressure sample, in order, and
// returns the rules that fired.
func (m *BrakeMonitor) Observe(pressure float64) []BrakeEvent {
	var events []BrakeEvent
	expected := m.ShouldBeDeployed()

	switch {
	case pressure < brakeCriticalBelow && !expected:
		if m.critical.TryLatch() {
			m.emergencyActive = true
			events = append(events, BrakeCritical)
		}
	case pressure > brakeCriticalReset:
		m.critical.Reset()
		m.emergencyActive = false
	}

	switch {
	case pressure >= brakeCriticalBelow && pressure < brakeWarningBelow && !expected:
		if m.warning.TryLatch() {
			events = append(events, BrakeWarning)
		}
	case pressure > brakeWarningReset:
		m.warning.Reset()
	}

	switch {
	case m.seen && m.lastPressure >= brakeWarningBelow && pressure < brakeWarningBelow:
		if m.leak.TryLatch() {
			events = append(events, BrakeLeak)
		}
	case pressure > brakeWarningReset:
		m.leak.Reset()
	}

	switch {
	case pressure < brakeDeployedBelow:
		if m.deployed.TryLatch() {
			events = append(events, BrakeDeployed)
		}
	case pressure > brakeDeployedBelow:
		m.deployed.Reset()
	}

	// emergencyActive is read after the critical rule so a critical trigger
	// in this sample suppresses the fault.
	switch {
	case pressure < brakeDeployedBelow && !expected && !m.emergencyActive:
		if m.fault.TryLatch() {
			events = append(events, BrakeFault)
		}
	case pressure >= brakeDeployedBelow || expected:
		m.fault.Reset()
	}

	switch {
	case expected && pressure >= brakeDeployedBelow:
		if m.shouldBeDeployed.TryLatch() {
			events = append(events, BrakeShouldBeDeployed)
		}
	default:
		m.shouldBeDeployed.Reset()
	}

	m.lastPressure = pressure
	m.seen = true
	return events
}
