package properties

import telemetry "groundstation-safety/internal/telemetry/domain"

// defaultDatatypes is the subset of the vehicle datatype table the
// escalation engine and the status API rely on. Deployments with the full
// table set properties_file.
var defaultDatatypes = []Datatype{
	{Name: "TempMotorLeft0", ID: 1, Critical: nil, Default: 0},
	{Name: "TempMotorLeft1", ID: 2, Critical: nil, Default: 0},
	{Name: "TempMotorLeft2", ID: 3, Critical: nil, Default: 0},
	{Name: "TempMotorLeft3", ID: 4, Critical: nil, Default: 0},
	{Name: "TempMotorLeft4", ID: 5, Critical: nil, Default: 0},
	{Name: "TempMotorLeft5", ID: 6, Critical: nil, Default: 0},
	{Name: "TempMotorLeft6", ID: 7, Critical: nil, Default: 0},
	{Name: "TempMotorLeft7", ID: 8, Critical: nil, Default: 0},
	{Name: "TempMotorRight0", ID: 9, Critical: telemetry.Bool(true), Default: 0},
	{Name: "TempMotorRight1", ID: 10, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight2", ID: 11, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight3", ID: 12, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight4", ID: 13, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight5", ID: 14, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight6", ID: 15, Critical: telemetry.Bool(false), Default: 0},
	{Name: "TempMotorRight7", ID: 16, Critical: telemetry.Bool(false), Default: 0},
	{Name: "PTCState", ID: 17, Critical: nil, Default: 0},
	{Name: "HVALState", ID: 18, Critical: nil, Default: 0},
	{Name: "IMDWarnings", ID: 19, Critical: telemetry.Bool(true), Default: 0},
	{Name: "Errors", ID: 20, Critical: telemetry.Bool(true), Default: 0},
	{Name: "BMSVoltageHigh", ID: 21, Critical: telemetry.Bool(true), Default: 0},
	{Name: "BMSVoltageLow", ID: 22, Critical: telemetry.Bool(true), Default: 0},
	{Name: "BMSTemperatureHigh", ID: 23, Critical: telemetry.Bool(true), Default: 0},
	{Name: "BMSTemperatureLow", ID: 24, Critical: telemetry.Bool(true), Default: 0},
	{Name: "VPack", ID: 25, Critical: nil, Default: 0},
	{Name: "IPack", ID: 26, Critical: telemetry.Bool(true), Default: 0},
	{Name: "VDCLink", ID: 27, Critical: nil, Default: 0},
	{Name: "LV_BMS_VoltageHigh", ID: 28, Critical: telemetry.Bool(true), Default: 0},
	{Name: "LV_BMS_VoltageLow", ID: 29, Critical: telemetry.Bool(true), Default: 0},
	{Name: "LV_BMS_TemperatureHigh", ID: 30, Critical: telemetry.Bool(true), Default: 0},
	{Name: "LV_BMS_TemperatureLow", ID: 31, Critical: telemetry.Bool(true), Default: 0},
	{Name: "Localization", ID: 32, Critical: nil, Default: 0},
	{Name: "Velocity", ID: 33, Critical: nil, Default: 0},
	{Name: "PPInitFault1", ID: 34, Critical: nil, Default: 255},
	{Name: "PPInitFault2", ID: 35, Critical: nil, Default: 255},
	{Name: "PPEmergency1", ID: 36, Critical: telemetry.Bool(true), Default: 0},
	{Name: "PPEmergency2", ID: 37, Critical: telemetry.Bool(true), Default: 0},
	{Name: "PTCError", ID: 38, Critical: telemetry.Bool(true), Default: 0},
	{Name: "BMSError", ID: 39, Critical: telemetry.Bool(true), Default: 0},
	{Name: "LeviFault", ID: 40, Critical: nil, Default: 0},
	{Name: "LeviFaultDriveNumber", ID: 41, Critical: nil, Default: 0},
	{Name: "TempHEMS1", ID: 42, Critical: nil, Default: 0},
	{Name: "TempHEMS2", ID: 43, Critical: nil, Default: 0},
	{Name: "TempHEMS3", ID: 44, Critical: nil, Default: 0},
	{Name: "TempHEMS4", ID: 45, Critical: nil, Default: 0},
	{Name: "TempHEMS5", ID: 46, Critical: nil, Default: 0},
	{Name: "TempHEMS6", ID: 47, Critical: nil, Default: 0},
	{Name: "TempHEMS7", ID: 48, Critical: nil, Default: 0},
	{Name: "TempHEMS8", ID: 49, Critical: nil, Default: 0},
	{Name: "TempEMS1", ID: 50, Critical: nil, Default: 0},
	{Name: "TempEMS2", ID: 51, Critical: nil, Default: 0},
	{Name: "TempEMS3", ID: 52, Critical: nil, Default: 0},
	{Name: "TempEMS4", ID: 53, Critical: nil, Default: 0},
	{Name: "TempEMS5", ID: 54, Critical: nil, Default: 0},
	{Name: "TempEMS6", ID: 55, Critical: nil, Default: 0},
	{Name: "TempEMS7", ID: 56, Critical: nil, Default: 0},
	{Name: "TempEMS8", ID: 57, Critical: nil, Default: 0},
	{Name: "BrakePressure", ID: 58, Critical: nil, Default: 0},
	{Name: "PressureLow", ID: 59, Critical: nil, Default: 0},
	{Name: "FrontendHeartbeating", ID: 60, Critical: nil, Default: 0},
	{Name: "FSMState", ID: 61, Critical: nil, Default: 0},
	{Name: "FSMTransitionFail", ID: 62, Critical: nil, Default: 100},
	{Name: "EmergencyStaleCriticalData", ID: 63, Critical: nil, Default: 0},
	{Name: "Emergency", ID: 64, Critical: nil, Default: 0},
}

var defaultFsmStates = []FsmState{
	{State: "Boot", Index: 0},
	{State: "ConnectedToGS", Index: 1},
	{State: "SystemCheck", Index: 2},
	{State: "Idle", Index: 3},
	{State: "PreCharge", Index: 4},
	{State: "Active", Index: 5},
	{State: "Demo", Index: 6},
	{State: "Levitating", Index: 7},
	{State: "Accelerating", Index: 8},
	{State: "Cruising", Index: 9},
	{State: "Braking", Index: 10},
	{State: "Discharge", Index: 11},
	{State: "Charging", Index: 12},
	{State: "Fault", Index: 13},
}
