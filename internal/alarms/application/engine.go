package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	alarms "groundstation-safety/internal/alarms/domain"
	"groundstation-safety/internal/observability/metrics"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

// Engine turns signal updates into deduplicated, acknowledgeable
// notifications. Escalation state is guarded by one mutex; notifications and
// commands produced while holding it are delivered after release, in order.
type Engine struct {
	signals  Signals
	table    *telemetry.PropertyTable
	registry *alarms.SourceRegistry
	notifier Notifier
	commands CommandSender
	resolver NameResolver
	dismiss  DismissListener
	clock    Clock
	logger   *log.Logger
	cfg      Config

	mu      sync.Mutex
	session *Session
	pending map[string]*pendingNotification
	closed  closedSet
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []func()
	started bool

	lookups sync.WaitGroup
}

type pendingNotification struct {
	notification alarms.Notification
	onDismiss    func(*Session)
}

// closedLimit bounds how many closed ids Dismiss still recognizes.
const closedLimit = 256

// closedSet remembers recently closed notification ids, oldest evicted first.
type closedSet struct {
	ids   map[string]struct{}
	order []string
}

func (c *closedSet) add(id string) {
	if c.ids == nil {
		c.ids = make(map[string]struct{}, closedLimit)
	}
	if _, ok := c.ids[id]; ok {
		return
	}
	if len(c.order) >= closedLimit {
		delete(c.ids, c.order[0])
		c.order = c.order[1:]
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)
}

func (c *closedSet) has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

// effect is one outbound action: a notification, a recovery close or a
// command.
type effect struct {
	notification *alarms.Notification
	resolved     *alarms.Notification
	command      string
	value        uint64
}

type effects []effect

// Option configures the engine.
type Option func(*Engine)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithRegistry injects the emergency source registry.
func WithRegistry(registry *alarms.SourceRegistry) Option {
	return func(e *Engine) {
		if registry != nil {
			e.registry = registry
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDismissListener receives operator dismissals.
func WithDismissListener(listener DismissListener) Option {
	return func(e *Engine) {
		e.dismiss = listener
	}
}

// NewEngine constructs an escalation engine. Call Start to subscribe it to
// the signal store.
func NewEngine(signals Signals, table *telemetry.PropertyTable, notifier Notifier, commands CommandSender, resolver NameResolver, opts ...Option) (*Engine, error) {
	if signals == nil {
		return nil, errors.New("alarms: nil signal store")
	}
	if table == nil {
		return nil, errors.New("alarms: nil property table")
	}
	if notifier == nil {
		return nil, errors.New("alarms: nil notifier")
	}
	if commands == nil {
		return nil, errors.New("alarms: nil command sender")
	}
	if resolver == nil {
		return nil, errors.New("alarms: nil name resolver")
	}
	e := &Engine{
		signals:  signals,
		table:    table,
		notifier: notifier,
		commands: commands,
		resolver: resolver,
		clock:    systemClock{},
		logger:   log.Default(),
		cfg:      DefaultConfig(),
		pending:  make(map[string]*pendingNotification),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.registry == nil {
		e.registry = alarms.NewSourceRegistry()
	}
	e.session = newSession(e.cfg)
	return e, nil
}

// Start subscribes every condition handler. ctx bounds asynchronous lookups
// and effect delivery for updates arriving through the store.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return errors.New("alarms: nil engine")
	}
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("alarms: engine already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	if mode, ok := e.signals.Current(e.cfg.Brake.ModeSignal); ok {
		e.session.brake.SetMode(int(mode.Value))
	}
	e.mu.Unlock()

	e.subscribeConditions()
	return nil
}

// Stop removes every subscription and cancels pending lookups.
func (e *Engine) Stop() {
	if e == nil {
		return
	}
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	cancel := e.cancel
	e.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until in-flight name lookups have completed.
func (e *Engine) Wait() {
	if e == nil {
		return
	}
	e.lookups.Wait()
}

// Dismiss acknowledges a notification and re-arms its condition. Dismissing
// twice is a no-op.
func (e *Engine) Dismiss(ctx context.Context, id string) error {
	if e == nil {
		return errors.New("alarms: nil engine")
	}
	if id == "" {
		return errors.New("alarms: notification id required")
	}
	e.mu.Lock()
	p, ok := e.pending[id]
	if !ok {
		closed := e.closed.has(id)
		e.mu.Unlock()
		if closed {
			return nil
		}
		return alarms.ErrNotFound
	}
	if !p.notification.Dismissable {
		e.mu.Unlock()
		return alarms.ErrNotDismissable
	}
	delete(e.pending, id)
	e.closed.add(id)
	if p.onDismiss != nil {
		p.onDismiss(e.session)
	}
	notification := p.notification
	e.mu.Unlock()

	if e.dismiss != nil {
		e.dismiss.NotificationDismissed(ctx, notification, e.clock.Now().UTC())
	}
	return nil
}

// Open lists notifications that have not been dismissed, oldest first.
func (e *Engine) Open() []alarms.Notification {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	out := make([]alarms.Notification, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.notification)
	}
	e.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// IsOpen reports whether a notification has been raised and not dismissed.
func (e *Engine) IsOpen(id string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[id]
	return ok
}

// ActiveEmergencySources lists registered emergency sources in the order
// they were first seen.
func (e *Engine) ActiveEmergencySources() []string {
	if e == nil {
		return nil
	}
	return e.registry.List()
}

// ClearEmergencySources empties the registry when removal is enabled.
func (e *Engine) ClearEmergencySources() error {
	if e == nil {
		return errors.New("alarms: nil engine")
	}
	if err := e.registry.Clear(); err != nil {
		return err
	}
	metrics.SetEmergencySources(e.registry.Len())
	return nil
}

// BrakeStatus is a snapshot of the brake monitor.
type BrakeStatus struct {
	EBSState         string  `json:"ebs_state"`
	Pressure         float64 `json:"pressure"`
	PressureKnown    bool    `json:"pressure_known"`
	ShouldBeDeployed bool    `json:"should_be_deployed"`
	EmergencyActive  bool    `json:"emergency_active"`
}

// Brake returns the current brake monitor state.
func (e *Engine) Brake() BrakeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	pressure, known := e.session.brake.LastPressure()
	return BrakeStatus{
		EBSState:         e.session.brake.EBSState(),
		Pressure:         pressure,
		PressureKnown:    known,
		ShouldBeDeployed: e.session.brake.ShouldBeDeployed(),
		EmergencyActive:  e.session.brake.EmergencyActive(),
	}
}

// SweepStale classifies every critical signal that has received data, so
// staleness is detected even when a signal stops updating.
func (e *Engine) SweepStale(ctx context.Context) {
	if e == nil {
		return
	}
	for _, name := range e.table.CriticalSignals() {
		if !e.signals.Updated(name) {
			continue
		}
		state, ok := e.signals.Current(name)
		if !ok {
			continue
		}
		e.apply(ctx, func(s *Session, fx *effects) {
			e.evaluateCritical(s, fx, name, state)
		})
	}
}

func (e *Engine) baseContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// apply runs fn under the engine lock and delivers the effects it produced.
func (e *Engine) apply(ctx context.Context, fn func(s *Session, fx *effects)) {
	var fx effects
	e.mu.Lock()
	fn(e.session, &fx)
	e.mu.Unlock()
	e.deliver(ctx, fx)
}

func (e *Engine) deliver(ctx context.Context, fx effects) {
	if len(fx) == 0 {
		return
	}
	metrics.SetEmergencySources(e.registry.Len())
	for _, item := range fx {
		if item.notification != nil {
			metrics.IncNotification(item.notification.Condition, string(item.notification.Severity))
			e.notifier.Notify(ctx, *item.notification)
			continue
		}
		if item.resolved != nil {
			if e.dismiss != nil {
				e.dismiss.NotificationDismissed(ctx, *item.resolved, e.clock.Now().UTC())
			}
			continue
		}
		e.sendCommand(ctx, item.command, item.value)
	}
}

func (e *Engine) sendCommand(ctx context.Context, name string, value uint64) {
	sendCtx := ctx
	if e.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.cfg.CommandTimeout)
		defer cancel()
	}
	err := e.commands.SendCommand(sendCtx, name, value)
	if err == nil {
		return
	}
	e.logger.Printf("alarms: send command %s: %v", name, err)

	var fx effects
	e.mu.Lock()
	e.raise(&fx, notice{
		condition:   "command.failed",
		message:     "Failed to send " + name + " command: " + err.Error(),
		severity:    alarms.SeverityWarning,
		dismissable: true,
	})
	e.mu.Unlock()
	for _, item := range fx {
		metrics.IncNotification(item.notification.Condition, string(item.notification.Severity))
		e.notifier.Notify(ctx, *item.notification)
	}
}

// notice describes a notification before it is assigned an id.
type notice struct {
	condition   string
	kind        alarms.Kind
	title       string
	message     string
	severity    alarms.Severity
	dismissable bool
	onDismiss   func(*Session)
}

// raise records a notification and queues it for delivery. Callers hold e.mu.
func (e *Engine) raise(fx *effects, n notice) {
	kind := n.kind
	if kind == "" {
		kind = alarms.KindToast
	}
	notification := alarms.Notification{
		ID:          uuid.NewString(),
		Condition:   n.condition,
		Kind:        kind,
		Title:       n.title,
		Message:     n.message,
		Severity:    n.severity,
		Dismissable: n.dismissable,
		CreatedAt:   e.clock.Now().UTC(),
	}
	e.pending[notification.ID] = &pendingNotification{notification: notification, onDismiss: n.onDismiss}
	*fx = append(*fx, effect{notification: &notification})
}

// resolve closes open notifications of a condition that clears on recovery
// and queues the close for the dismiss listener. Callers hold e.mu.
func (e *Engine) resolve(fx *effects, condition string) {
	for id, p := range e.pending {
		if p.notification.Condition != condition {
			continue
		}
		delete(e.pending, id)
		e.closed.add(id)
		notification := p.notification
		*fx = append(*fx, effect{resolved: &notification})
	}
}

// command queues a vehicle command. Callers hold e.mu.
func (fx *effects) command(name string, value uint64) {
	*fx = append(*fx, effect{command: name, value: value})
}

// lookup resolves a name off the update goroutine and applies the result
// under the engine lock. Sentinels and errors drop the update.
func (e *Engine) lookup(kind, sentinel string, resolve func(ctx context.Context) (string, error), fn func(s *Session, fx *effects, name string)) {
	ctx := e.baseContext()
	e.lookups.Add(1)
	go func() {
		defer e.lookups.Done()
		name, err := resolve(ctx)
		if err != nil {
			metrics.IncLookupDrop(kind)
			e.logger.Printf("alarms: %s lookup: %v", kind, err)
			return
		}
		if name == "" || name == sentinel {
			metrics.IncLookupDrop(kind)
			return
		}
		e.apply(ctx, func(s *Session, fx *effects) {
			fn(s, fx, name)
		})
	}()
}
