package application

import (
	"sort"
	"sync"

	telemetry "groundstation-safety/internal/telemetry/domain"
)

// Listener receives every update of one signal.
type Listener func(state telemetry.SignalState)

// Observer receives every update of every signal.
type Observer func(name string, state telemetry.SignalState)

// SignalStore keeps the latest value of every signal and fans updates out to
// subscribers on the updating goroutine.
type SignalStore struct {
	mu        sync.RWMutex
	signals   map[string]*signal
	observers []observerEntry
	nextID    uint64
}

type signal struct {
	// serializes Update for this signal, held across callbacks
	update sync.Mutex

	mu        sync.RWMutex
	state     telemetry.SignalState
	updated   bool
	listeners []listenerEntry
}

type listenerEntry struct {
	id uint64
	fn Listener
}

type observerEntry struct {
	id uint64
	fn Observer
}

// NewSignalStore pre-seeds every known signal with its start-up value.
func NewSignalStore(defaults map[string]float64) *SignalStore {
	s := &SignalStore{signals: make(map[string]*signal, len(defaults))}
	for name, value := range defaults {
		s.signals[name] = &signal{state: telemetry.SignalState{Value: value}}
	}
	return s
}

// Update stores the new state and notifies subscribers exactly once each, in
// subscription order. Unknown names are created on first update.
func (s *SignalStore) Update(name string, value, timestamp float64) {
	if s == nil || name == "" {
		return
	}
	sig := s.entry(name)
	state := telemetry.SignalState{Value: value, Timestamp: timestamp}

	sig.update.Lock()
	defer sig.update.Unlock()

	sig.mu.Lock()
	sig.state = state
	sig.updated = true
	listeners := append([]listenerEntry(nil), sig.listeners...)
	sig.mu.Unlock()

	s.mu.RLock()
	observers := append([]observerEntry(nil), s.observers...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l.fn(state)
	}
	for _, o := range observers {
		o.fn(name, state)
	}
}

// Current returns the latest state of a signal.
func (s *SignalStore) Current(name string) (telemetry.SignalState, bool) {
	if s == nil {
		return telemetry.SignalState{}, false
	}
	s.mu.RLock()
	sig, ok := s.signals[name]
	s.mu.RUnlock()
	if !ok {
		return telemetry.SignalState{}, false
	}
	sig.mu.RLock()
	defer sig.mu.RUnlock()
	return sig.state, true
}

// Updated reports whether a signal has received at least one update since
// start-up.
func (s *SignalStore) Updated(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	sig, ok := s.signals[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	sig.mu.RLock()
	defer sig.mu.RUnlock()
	return sig.updated
}

// Names lists every signal the store knows about.
func (s *SignalStore) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.signals))
	for name := range s.signals {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn for every future update of name. The returned
// function removes the subscription and is safe to call more than once.
func (s *SignalStore) Subscribe(name string, fn Listener) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	sig := s.entry(name)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	sig.mu.Lock()
	sig.listeners = append(sig.listeners, listenerEntry{id: id, fn: fn})
	sig.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sig.mu.Lock()
			defer sig.mu.Unlock()
			for i, l := range sig.listeners {
				if l.id == id {
					sig.listeners = append(sig.listeners[:i:i], sig.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeAll registers fn for every future update of any signal.
func (s *SignalStore) SubscribeAll(fn Observer) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *SignalStore) entry(name string) *signal {
	s.mu.RLock()
	sig, ok := s.signals[name]
	s.mu.RUnlock()
	if ok {
		return sig
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signals == nil {
		s.signals = make(map[string]*signal)
	}
	if sig, ok = s.signals[name]; ok {
		return sig
	}
	sig = &signal{}
	s.signals[name] = sig
	return sig
}
