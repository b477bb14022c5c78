package commands

import "time"

const (
	StatusCreated = "created"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

const (
	OriginEngine   = "engine"
	OriginOperator = "operator"
)

// Command is a single instruction sent to the vehicle.
type Command struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     uint64    `json:"value"`
	Origin    string    `json:"origin"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	SentAt    time.Time `json:"sent_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}
