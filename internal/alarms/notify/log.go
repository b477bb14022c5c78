package notify

import (
	"context"
	"log"

	alarms "groundstation-safety/internal/alarms/domain"
)

// LogNotifier writes every notification to a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier constructs a log notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements application.Notifier.
func (l *LogNotifier) Notify(_ context.Context, n alarms.Notification) {
	if l == nil {
		return
	}
	if n.Title != "" {
		l.logger.Printf("notification [%s] %s: %s: %s", n.Severity, n.Condition, n.Title, n.Message)
		return
	}
	l.logger.Printf("notification [%s] %s: %s", n.Severity, n.Condition, n.Message)
}
