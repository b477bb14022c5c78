package application

import (
	"context"
	"time"

	alarms "groundstation-safety/internal/alarms/domain"
	telemetryapp "groundstation-safety/internal/telemetry/application"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

// Notifier delivers operator-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n alarms.Notification)
}

// DismissListener is told when an operator dismisses a notification.
type DismissListener interface {
	NotificationDismissed(ctx context.Context, n alarms.Notification, at time.Time)
}

// CommandSender issues commands to the vehicle.
type CommandSender interface {
	SendCommand(ctx context.Context, name string, value uint64) error
}

// NameResolver turns numeric identifiers into names. Unknown keys resolve to
// a sentinel rather than an error.
type NameResolver interface {
	ResolveFsmStateName(ctx context.Context, index int) (string, error)
	ResolveDatatypeName(ctx context.Context, id int) (string, error)
}

// Signals is the part of the signal store the engine consumes.
type Signals interface {
	Subscribe(name string, fn telemetryapp.Listener) func()
	Current(name string) (telemetry.SignalState, bool)
	Updated(name string) bool
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n alarms.Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n alarms.Notification) {
	f(ctx, n)
}
