package application

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	alarms "groundstation-safety/internal/alarms/domain"
	telemetryapp "groundstation-safety/internal/telemetry/application"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

const (
	lookupFsmState = "fsm_state"
	lookupDatatype = "datatype"

	// UnknownFsmState and UnknownDatatype are the resolver sentinels.
	UnknownFsmState = "UnknownState"
	UnknownDatatype = "UnknownDatatype"
)

func (e *Engine) subscribeConditions() {
	on := func(name string, fn func(s *Session, fx *effects, state telemetry.SignalState)) {
		unsub := e.signals.Subscribe(name, telemetryapp.Listener(func(state telemetry.SignalState) {
			e.apply(e.baseContext(), func(s *Session, fx *effects) {
				fn(s, fx, state)
			})
		}))
		e.mu.Lock()
		e.unsubs = append(e.unsubs, unsub)
		e.mu.Unlock()
	}

	for _, group := range e.cfg.TemperatureGroups {
		group := group
		for _, signal := range group.Signals {
			on(signal, func(s *Session, fx *effects, state telemetry.SignalState) {
				e.evaluateTemperature(s, fx, group, state.Value)
			})
		}
	}

	for i, name := range []string{SignalPPInitFault1, SignalPPInitFault2} {
		motor := i
		on(name, func(s *Session, fx *effects, state telemetry.SignalState) {
			e.evaluatePropInitFault(s, fx, motor, state.Value)
		})
	}
	for i, name := range []string{SignalPPEmergency1, SignalPPEmergency2} {
		motor := i
		on(name, func(s *Session, fx *effects, state telemetry.SignalState) {
			e.evaluatePropEmergency(s, fx, motor, state.Value)
		})
	}

	on(SignalEmergency, func(s *Session, fx *effects, state telemetry.SignalState) {
		e.evaluateEmergency(s, fx, state.Value)
	})
	on(SignalLeviFault, func(s *Session, fx *effects, state telemetry.SignalState) {
		e.evaluateLeviFault(s, fx, state.Value)
	})

	e.onAsync(SignalEmergencyStaleCriticalData, func(state telemetry.SignalState) {
		e.handleStaleCriticalData(state.Value)
	})
	e.onAsync(SignalFSMTransitionFail, func(state telemetry.SignalState) {
		e.handleTransitionFail(state.Value)
	})

	for _, name := range e.table.CriticalSignals() {
		name := name
		on(name, func(s *Session, fx *effects, state telemetry.SignalState) {
			e.evaluateCritical(s, fx, name, state)
		})
	}

	on(e.cfg.Brake.ModeSignal, func(s *Session, _ *effects, state telemetry.SignalState) {
		s.brake.SetMode(int(state.Value))
	})
	on(e.cfg.Brake.PressureSignal, func(s *Session, fx *effects, state telemetry.SignalState) {
		e.evaluateBrake(s, fx, state.Value)
	})
}

// onAsync subscribes a handler that starts a lookup instead of taking the
// engine lock on the update goroutine.
func (e *Engine) onAsync(name string, fn func(state telemetry.SignalState)) {
	unsub := e.signals.Subscribe(name, telemetryapp.Listener(fn))
	e.mu.Lock()
	e.unsubs = append(e.unsubs, unsub)
	e.mu.Unlock()
}

func (e *Engine) evaluateTemperature(s *Session, fx *effects, group TemperatureGroup, value float64) {
	flag := s.temperature[group.Condition]
	if flag == nil || !(value >= e.cfg.TemperatureThreshold) {
		return
	}
	if !flag.TryLatch() {
		return
	}
	e.raise(fx, notice{
		condition:   group.Condition,
		message:     group.Message,
		severity:    alarms.SeverityError,
		dismissable: true,
		onDismiss:   func(*Session) { flag.Reset() },
	})
}

func (e *Engine) evaluatePropInitFault(s *Session, fx *effects, motor int, value float64) {
	if value == PropInitFaultIdle {
		return
	}
	flag := &s.propInitFault[motor]
	if !flag.TryLatch() {
		return
	}
	message := fmt.Sprintf("PropInitFault %d: %s", motor+1, formatValue(value))
	e.logger.Printf("alarms: %s", message)
	e.raise(fx, notice{
		condition:   fmt.Sprintf("propulsion.init_fault_%d", motor+1),
		message:     message,
		severity:    alarms.SeverityError,
		dismissable: true,
		onDismiss:   func(s *Session) { s.propInitFault[motor].Reset() },
	})
}

func (e *Engine) evaluatePropEmergency(s *Session, fx *effects, motor int, value float64) {
	if value == 0 {
		return
	}
	flag := &s.propEmergency[motor]
	if !flag.TryLatch() {
		return
	}
	e.registry.Add(fmt.Sprintf("Propulsion Motor %d", motor+1))
	message := fmt.Sprintf("Prop Emergency %d: %s", motor+1, formatValue(value))
	e.logger.Printf("alarms: %s", message)
	e.raise(fx, notice{
		condition:   fmt.Sprintf("propulsion.emergency_%d", motor+1),
		message:     message,
		severity:    alarms.SeverityError,
		dismissable: true,
		onDismiss:   func(s *Session) { s.propEmergency[motor].Reset() },
	})
}

func (e *Engine) evaluateEmergency(s *Session, fx *effects, value float64) {
	if value == 0 {
		return
	}
	label, err := e.emergencyLabel(value)
	if err != nil {
		if !s.invalidEmergencyCode.TryLatch() {
			return
		}
		e.logger.Printf("alarms: emergency: %v", err)
		e.raise(fx, notice{
			condition:   "emergency.invalid_code",
			message:     "Internal error: " + err.Error(),
			severity:    alarms.SeverityError,
			dismissable: true,
			onDismiss:   func(s *Session) { s.invalidEmergencyCode.Reset() },
		})
		return
	}
	if !s.emergencyModal.TryLatch() {
		return
	}
	e.registry.Add(label)
	e.logger.Printf("alarms: emergency triggered: %s Emergency!", label)
	e.raise(fx, notice{
		condition: "emergency.general",
		kind:      alarms.KindModal,
		title:     label + " Emergency!",
		message: fmt.Sprintf("Emergency triggered: %s Emergency! The Main PCB attempted to turn off high voltage "+
			"with a message on the CAN bus. Always double check if it succeeded.", label),
		severity:    alarms.SeverityCritical,
		dismissable: true,
		onDismiss:   func(s *Session) { s.emergencyModal.Reset() },
	})
}

func (e *Engine) emergencyLabel(value float64) (string, error) {
	code, ok := integral(value)
	if !ok {
		return "", fmt.Errorf("%w: value %s is not an integer code", alarms.ErrUnknownEmergencyCode, formatValue(value))
	}
	return e.cfg.Labels.Label(code)
}

func (e *Engine) evaluateLeviFault(s *Session, fx *effects, value float64) {
	if value == 0 {
		return
	}
	if !s.leviFault.TryLatch() {
		return
	}
	drive := "unknown"
	if state, ok := e.signals.Current(SignalLeviFaultDriveNumber); ok {
		drive = formatValue(state.Value)
	}
	var word uint64
	if code, ok := integral(value); ok && code > 0 {
		word = uint64(code)
	}
	faults := strings.Join(alarms.FaultBits(word, e.cfg.LeviFaultLabels), ", ")
	if faults == "" {
		faults = "fault value " + formatValue(value)
	}
	message := fmt.Sprintf("Levitation drive %s signaled a fault with message: %s", drive, faults)
	e.registry.Add(fmt.Sprintf("Levi drive %s: %s", drive, faults))
	e.logger.Printf("alarms: %s", message)
	e.raise(fx, notice{
		condition:   "levitation.fault",
		kind:        alarms.KindModal,
		title:       "Levi Fault!",
		message:     message,
		severity:    alarms.SeverityCritical,
		dismissable: true,
		onDismiss:   func(s *Session) { s.leviFault.Reset() },
	})
}

func (e *Engine) handleStaleCriticalData(value float64) {
	if value == 0 {
		return
	}
	id, ok := integral(value)
	if !ok {
		return
	}
	e.logger.Printf("alarms: stale critical data emergency with id %d", id)
	e.lookup(lookupDatatype, UnknownDatatype, func(ctx context.Context) (string, error) {
		return e.resolver.ResolveDatatypeName(ctx, id)
	}, func(s *Session, fx *effects, datatype string) {
		if !s.addStaleDatatype(datatype) {
			return
		}
		e.registry.Add(datatype + " Stale")
		verb := "has"
		if len(s.staleDatatypes) > 1 {
			verb = "have"
		}
		e.raise(fx, notice{
			condition: "emergency.stale_critical_data",
			kind:      alarms.KindModal,
			title:     "Stale critical datatype!",
			message: fmt.Sprintf("%s %s been stale for more than one second! The main PCB went into the Fault state "+
				"and triggered an emergency brake!", strings.Join(s.staleDatatypes, ", "), verb),
			severity:    alarms.SeverityCritical,
			dismissable: true,
		})
	})
}

func (e *Engine) handleTransitionFail(value float64) {
	index, ok := integral(value)
	if !ok {
		return
	}
	e.lookup(lookupFsmState, UnknownFsmState, func(ctx context.Context) (string, error) {
		return e.resolver.ResolveFsmStateName(ctx, index)
	}, func(s *Session, fx *effects, state string) {
		if !s.fsmTransitionFail.TryLatch() {
			return
		}
		message := fmt.Sprintf("Transition to state %s failed!", state)
		e.logger.Printf("alarms: %s", message)
		e.raise(fx, notice{
			condition:   "fsm.transition_failed",
			message:     message,
			severity:    alarms.SeverityError,
			dismissable: true,
			onDismiss:   func(s *Session) { s.fsmTransitionFail.Reset() },
		})
	})
}

func (e *Engine) evaluateCritical(s *Session, fx *effects, name string, state telemetry.SignalState) {
	result := telemetry.ClassifyNamed(e.table, name, state.Value, state.Timestamp, telemetry.Seconds(e.clock.Now()))
	if !result.IsEmergency {
		return
	}
	flag := s.criticalFlag(name)
	if !flag.TryLatch() {
		return
	}
	var source, message string
	if result.OutOfRange {
		source = name + " out of range"
		message = fmt.Sprintf("%s is out of range: %s", name, formatValue(state.Value))
	} else {
		source = name + " Stale"
		message = fmt.Sprintf("%s has not been updated within its stale limit", name)
	}
	e.registry.Add(source)
	e.raise(fx, notice{
		condition:   "critical." + name,
		message:     message,
		severity:    alarms.SeverityCritical,
		dismissable: true,
		onDismiss:   func(*Session) { flag.Reset() },
	})
}

func (e *Engine) evaluateBrake(s *Session, fx *effects, pressure float64) {
	events := s.brake.Observe(pressure)
	if !s.brake.EmergencyActive() {
		e.resolve(fx, BrakeCritical.String())
	}
	for _, event := range events {
		p := formatValue(pressure)
		switch event {
		case BrakeCritical:
			fx.command(e.cfg.Brake.EmergencyCommand, 0)
			e.registry.Add("Brake pressure critical")
			e.raise(fx, notice{
				condition: event.String(),
				message:   fmt.Sprintf("Brake pressure critically low (%s bar)! Emergency brake requested.", p),
				severity:  alarms.SeverityCritical,
			})
		case BrakeWarning:
			e.raise(fx, notice{
				condition:   event.String(),
				message:     fmt.Sprintf("Brake pressure low (%s bar).", p),
				severity:    alarms.SeverityWarning,
				dismissable: true,
			})
		case BrakeLeak:
			e.raise(fx, notice{
				condition:   event.String(),
				message:     fmt.Sprintf("Brake pressure dropped below 30 bar (%s bar). Possible leak.", p),
				severity:    alarms.SeverityWarning,
				dismissable: true,
			})
		case BrakeDeployed:
			e.raise(fx, notice{
				condition:   event.String(),
				message:     "Brakes deployed.",
				severity:    alarms.SeverityInfo,
				dismissable: true,
			})
		case BrakeFault:
			e.raise(fx, notice{
				condition:   event.String(),
				message:     "Brakes deployed while the vehicle is not in a braking state!",
				severity:    alarms.SeverityError,
				dismissable: true,
			})
		case BrakeShouldBeDeployed:
			e.raise(fx, notice{
				condition:   event.String(),
				message:     fmt.Sprintf("Brakes should be deployed but pressure is %s bar!", p),
				severity:    alarms.SeverityError,
				dismissable: true,
			})
		}
	}
}

// integral converts a signal value carrying an integer code.
func integral(value float64) (int, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
		return 0, false
	}
	if value > math.MaxInt32 || value < math.MinInt32 {
		return 0, false
	}
	return int(value), true
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
