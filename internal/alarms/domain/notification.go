package alarms

import "time"

// Severity ranks a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Kind selects how the operator surface renders a notification.
type Kind string

const (
	KindToast Kind = "toast"
	KindModal Kind = "modal"
)

// Notification is one operator-facing message.
type Notification struct {
	ID          string    `json:"id"`
	Condition   string    `json:"condition"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	Dismissable bool      `json:"dismissable"`
	CreatedAt   time.Time `json:"created_at"`
}
