package alarms

import "errors"

var (
	// ErrNotFound indicates a missing notification.
	ErrNotFound = errors.New("alarms: not found")
	// ErrRemovalDisabled is returned when the source registry is append-only.
	ErrRemovalDisabled = errors.New("alarms: emergency source removal disabled")
	// ErrUnknownEmergencyCode marks an emergency code outside the label table.
	ErrUnknownEmergencyCode = errors.New("alarms: unknown emergency code")
	// ErrInvalidLabelTable indicates an unusable label configuration.
	ErrInvalidLabelTable = errors.New("alarms: invalid label table")
)

// ErrNotDismissable is returned when dismissing a notification that only
// clears on recovery.
var ErrNotDismissable = errors.New("alarms: notification not dismissable")
