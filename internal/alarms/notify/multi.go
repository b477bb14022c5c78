package notify

import (
	"context"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
)

// MultiNotifier dispatches notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []alarmapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alarmapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the notification to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, n alarms.Notification) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
