package application

import (
	"errors"
	"sync"
	"time"

	"groundstation-safety/internal/observability/metrics"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Status is the classification of a signal together with its current state.
type Status struct {
	Name           string                         `json:"name"`
	Known          bool                           `json:"known"`
	Value          float64                        `json:"value"`
	Timestamp      float64                        `json:"ts"`
	Classification telemetry.ClassificationResult `json:"classification"`
}

// HealthService answers classification queries against live signal state.
type HealthService struct {
	store *SignalStore
	table *telemetry.PropertyTable
	clock Clock

	mu            sync.RWMutex
	lastHeartbeat time.Time
}

// HealthOption configures the health service.
type HealthOption func(*HealthService)

// WithClock overrides the clock.
func WithClock(clock Clock) HealthOption {
	return func(s *HealthService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewHealthService constructs a health service.
func NewHealthService(store *SignalStore, table *telemetry.PropertyTable, opts ...HealthOption) (*HealthService, error) {
	if store == nil {
		return nil, errors.New("health service: nil store")
	}
	if table == nil {
		return nil, errors.New("health service: nil property table")
	}
	s := &HealthService{store: store, table: table, clock: systemClock{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Table exposes the property table used for classification.
func (s *HealthService) Table() *telemetry.PropertyTable {
	return s.table
}

// Now returns the service clock reading in epoch seconds.
func (s *HealthService) Now() float64 {
	return telemetry.Seconds(s.clock.Now())
}

// Classify evaluates the current state of name at the current time. Unknown
// names classify as all false.
func (s *HealthService) Classify(name string) telemetry.ClassificationResult {
	return s.Status(name).Classification
}

// Status returns the current state of name with its classification.
func (s *HealthService) Status(name string) Status {
	state, ok := s.store.Current(name)
	status := Status{Name: name, Known: ok}
	if !ok {
		return status
	}
	status.Value = state.Value
	status.Timestamp = state.Timestamp
	status.Classification = telemetry.ClassifyNamed(s.table, name, state.Value, state.Timestamp, s.Now())
	metrics.IncClassification(status.Classification.IsEmergency,
		status.Classification.OutOfRange || status.Classification.IsStale)
	return status
}

// TrackHeartbeat records the arrival time of every update of name.
func (s *HealthService) TrackHeartbeat(name string) func() {
	return s.store.Subscribe(name, func(telemetry.SignalState) {
		now := s.clock.Now()
		s.mu.Lock()
		s.lastHeartbeat = now
		s.mu.Unlock()
	})
}

// LastHeartbeat returns when the tracked heartbeat signal last arrived.
func (s *HealthService) LastHeartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeat
}
