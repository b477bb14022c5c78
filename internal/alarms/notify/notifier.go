package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	alarms "groundstation-safety/internal/alarms/domain"
)

// OpenChecker reports whether a notification still awaits dismissal.
type OpenChecker interface {
	IsOpen(id string) bool
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders notifications and sends them through a channel. Critical
// notifications still open after the escalation delay are sent again.
type Notifier struct {
	channel        Channel
	template       *Template
	open           OpenChecker
	escalation     time.Duration
	clock          Clock
	logger         *log.Logger
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	minSeverity    alarms.Severity
	dashboardURL   string
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay. It needs an OpenChecker.
func WithEscalation(after time.Duration, open OpenChecker) Option {
	return func(n *Notifier) {
		if after > 0 && open != nil {
			n.escalation = after
			n.open = open
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger assigns a logger for delivery failures.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithRequestTimeout bounds each channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same condition.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithMinSeverity drops notifications below severity.
func WithMinSeverity(severity alarms.Severity) Option {
	return func(n *Notifier) {
		n.minSeverity = severity
	}
}

// WithDashboardURL adds a link to the operator dashboard.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// NewNotifier constructs a channel notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         log.Default(),
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.Notifier.
func (n *Notifier) Notify(ctx context.Context, notification alarms.Notification) {
	if n == nil || n.channel == nil {
		return
	}
	if severityRank(notification.Severity) < severityRank(n.minSeverity) {
		return
	}
	n.dispatch(ctx, "raised", notification)
	if notification.Severity == alarms.SeverityCritical && notification.Dismissable {
		n.scheduleEscalation(notification)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, event string, notification alarms.Notification) {
	data := buildTemplateData(event, notification, n.dashboardURL)
	content, err := n.template.Render(data)
	if err != nil {
		n.logger.Printf("notifier: render %s: %v", notification.ID, err)
		return
	}
	fingerprint := fingerprintOf(notification)
	if !n.shouldSend(notification.Condition, event, fingerprint) {
		return
	}
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Printf("notifier: send %s: %v", notification.ID, err)
		return
	}
	n.markSent(notification.Condition, event, fingerprint)
}

func (n *Notifier) scheduleEscalation(notification alarms.Notification) {
	if n.escalation <= 0 || n.open == nil || notification.ID == "" {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[notification.ID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[notification.ID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(notification)
	})
	n.mu.Unlock()
}

func (n *Notifier) runEscalation(notification alarms.Notification) {
	n.mu.Lock()
	delete(n.timers, notification.ID)
	n.mu.Unlock()
	if !n.open.IsOpen(notification.ID) {
		return
	}
	n.dispatch(context.Background(), "escalated", notification)
}

func buildTemplateData(event string, notification alarms.Notification, dashboardURL string) TemplateData {
	return TemplateData{
		ID:           notification.ID,
		Condition:    notification.Condition,
		Kind:         string(notification.Kind),
		Title:        notification.Title,
		Message:      notification.Message,
		Severity:     string(notification.Severity),
		CreatedAt:    notification.CreatedAt.UTC().Format(time.RFC3339),
		Suggestion:   suggestionFor(notification.Severity),
		DashboardURL: dashboardURL,
		Event:        event,
		EventLabel:   eventLabel(event),
	}
}

func eventLabel(event string) string {
	switch event {
	case "raised":
		return "Raised"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(severity alarms.Severity) string {
	switch severity {
	case alarms.SeverityCritical:
		return "Check the vehicle immediately and confirm the emergency brake state."
	case alarms.SeverityError:
		return "Inspect the subsystem before continuing the run."
	case alarms.SeverityWarning:
		return "Verify the condition and take action if needed."
	default:
		return "No action required."
	}
}

func severityRank(value alarms.Severity) int {
	switch alarms.Severity(strings.TrimSpace(strings.ToLower(string(value)))) {
	case alarms.SeverityCritical:
		return 4
	case alarms.SeverityError:
		return 3
	case alarms.SeverityWarning:
		return 2
	case alarms.SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (n *Notifier) shouldSend(condition, event, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(condition, event)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(condition, event, content string) {
	key := notificationKey(condition, event)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

// fingerprintOf ignores id and timestamp so repeats of one message match.
func fingerprintOf(notification alarms.Notification) string {
	return string(notification.Severity) + "|" + notification.Title + "|" + notification.Message
}

func notificationKey(condition, event string) string {
	return condition + "|" + event
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
