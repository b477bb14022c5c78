package application

import alarms "groundstation-safety/internal/alarms/domain"

// Session holds every piece of mutable escalation state. One session lives
// for the lifetime of an Engine and is only touched under the engine lock.
type Session struct {
	temperature map[string]*alarms.AckFlag

	propInitFault [2]alarms.AckFlag
	propEmergency [2]alarms.AckFlag

	emergencyModal       alarms.AckFlag
	invalidEmergencyCode alarms.AckFlag
	leviFault            alarms.AckFlag
	fsmTransitionFail    alarms.AckFlag

	staleDatatypes []string

	critical map[string]*alarms.AckFlag

	brake *BrakeMonitor
}

func newSession(cfg Config) *Session {
	s := &Session{
		temperature: make(map[string]*alarms.AckFlag, len(cfg.TemperatureGroups)),
		critical:    make(map[string]*alarms.AckFlag),
		brake:       NewBrakeMonitor(cfg.Brake.DeployedModes),
	}
	for _, g := range cfg.TemperatureGroups {
		s.temperature[g.Condition] = &alarms.AckFlag{}
	}
	return s
}

func (s *Session) criticalFlag(name string) *alarms.AckFlag {
	flag, ok := s.critical[name]
	if !ok {
		flag = &alarms.AckFlag{}
		s.critical[name] = flag
	}
	return flag
}

func (s *Session) addStaleDatatype(name string) bool {
	for _, existing := range s.staleDatatypes {
		if existing == name {
			return false
		}
	}
	s.staleDatatypes = append(s.staleDatatypes, name)
	return true
}
