package telemetry

import (
	"math"
	"time"
)

// SignalState is the latest value of a named signal.
type SignalState struct {
	Value     float64 `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

// Sample is a single inbound telemetry value for a named signal.
type Sample struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp float64 `json:"ts"`
}

// Seconds converts a wall-clock time to the fractional epoch seconds used for
// signal timestamps.
func Seconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// TimeOf converts epoch seconds back to a UTC time. Non-finite input yields the
// zero time.
func TimeOf(seconds float64) time.Time {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
