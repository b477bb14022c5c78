package application

import (
	"errors"
	"fmt"
	"time"

	alarms "groundstation-safety/internal/alarms/domain"
)

// Signal names the engine subscribes to.
const (
	SignalPPInitFault1               = "PPInitFault1"
	SignalPPInitFault2               = "PPInitFault2"
	SignalPPEmergency1               = "PPEmergency1"
	SignalPPEmergency2               = "PPEmergency2"
	SignalEmergency                  = "Emergency"
	SignalEmergencyStaleCriticalData = "EmergencyStaleCriticalData"
	SignalLeviFault                  = "LeviFault"
	SignalLeviFaultDriveNumber       = "LeviFaultDriveNumber"
	SignalFSMTransitionFail          = "FSMTransitionFail"
	SignalFSMState                   = "FSMState"
	SignalBrakePressure              = "BrakePressure"
	SignalFrontendHeartbeating       = "FrontendHeartbeating"
)

// PropInitFaultIdle is the value PPInitFault signals hold while healthy.
const PropInitFaultIdle = 255

// TemperatureGroup is a set of channels reported through one shared flag.
type TemperatureGroup struct {
	Condition string
	Message   string
	Signals   []string
}

// BrakeConfig configures the brake pressure monitor.
type BrakeConfig struct {
	PressureSignal   string
	ModeSignal       string
	DeployedModes    []int
	EmergencyCommand string
}

// Config holds the escalation rules' tunables.
type Config struct {
	TemperatureThreshold float64
	TemperatureGroups    []TemperatureGroup
	Labels               alarms.LabelTable
	LeviFaultLabels      []string
	Brake                BrakeConfig
	CommandTimeout       time.Duration
}

// DefaultDeployedModes are the FSM indices in which the brakes are expected
// to be deployed: Boot, ConnectedToGS, SystemCheck, Idle, PreCharge, Active,
// Discharge, Charging and Fault.
func DefaultDeployedModes() []int {
	return []int{0, 1, 2, 3, 4, 5, 11, 12, 13}
}

// DefaultConfig returns the rules used on the vehicle.
func DefaultConfig() Config {
	labels, _ := alarms.DefaultLabelTables().Select(alarms.DefaultLabelVersion)
	return Config{
		TemperatureThreshold: 60,
		TemperatureGroups: []TemperatureGroup{
			{Condition: "temperature.motor_left", Message: "Temperature on the left motor is too high!", Signals: channels("TempMotorLeft%d", 0)},
			{Condition: "temperature.motor_right", Message: "Temperature on the right motor is too high!", Signals: channels("TempMotorRight%d", 0)},
			{Condition: "temperature.ems", Message: "Temperature on EMS is too high!", Signals: channels("TempEMS%d", 1)},
			{Condition: "temperature.hems", Message: "Temperature on HEMS is too high!", Signals: channels("TempHEMS%d", 1)},
		},
		Labels: labels,
		Brake: BrakeConfig{
			PressureSignal:   SignalBrakePressure,
			ModeSignal:       SignalFSMState,
			DeployedModes:    DefaultDeployedModes(),
			EmergencyCommand: "EmergencyBrake",
		},
		CommandTimeout: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Labels.Labels) == 0 {
		return errors.New("alarms: empty emergency label table")
	}
	if c.Brake.PressureSignal == "" || c.Brake.ModeSignal == "" {
		return errors.New("alarms: brake signals required")
	}
	if c.Brake.EmergencyCommand == "" {
		return errors.New("alarms: emergency command required")
	}
	for _, g := range c.TemperatureGroups {
		if g.Condition == "" || len(g.Signals) == 0 {
			return errors.New("alarms: temperature group needs a condition and signals")
		}
	}
	return nil
}

func channels(format string, first int) []string {
	out := make([]string, 0, 8)
	for i := first; i < first+8; i++ {
		out = append(out, fmt.Sprintf(format, i))
	}
	return out
}
