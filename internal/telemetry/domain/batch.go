package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyBatch is returned when a payload carries no samples.
var ErrEmptyBatch = errors.New("telemetry: no samples")

// millisecondsAbove separates epoch milliseconds from epoch seconds.
const millisecondsAbove = 1e12

type batchPayload struct {
	Points []Sample `json:"points"`
	Name   string   `json:"name"`
	Value  *float64 `json:"value"`
	TS     float64  `json:"ts"`
}

// DecodeBatch parses either {"points":[{"name","value","ts"}]} or a single
// {"name","value","ts"} object. Samples without a timestamp are stamped with
// now; millisecond timestamps are converted to seconds.
func DecodeBatch(body []byte, now float64) ([]Sample, error) {
	var payload batchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	points := payload.Points
	if len(points) == 0 && payload.Name != "" {
		if payload.Value == nil {
			return nil, fmt.Errorf("telemetry: %s: missing value", payload.Name)
		}
		points = []Sample{{Name: payload.Name, Value: *payload.Value, Timestamp: payload.TS}}
	}
	if len(points) == 0 {
		return nil, ErrEmptyBatch
	}
	samples := make([]Sample, 0, len(points))
	for _, point := range points {
		sample, err := NewSample(point.Name, point.Value, point.Timestamp, now)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// NewSample validates one sample and normalizes its timestamp.
func NewSample(name string, value, ts, now float64) (Sample, error) {
	if name == "" {
		return Sample{}, errors.New("telemetry: sample without name")
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Sample{}, fmt.Errorf("telemetry: %s: non-finite value", name)
	}
	normalized, err := NormalizeTimestamp(ts, now)
	if err != nil {
		return Sample{}, fmt.Errorf("telemetry: %s: %w", name, err)
	}
	return Sample{Name: name, Value: value, Timestamp: normalized}, nil
}

// NormalizeTimestamp returns ts in epoch seconds. Zero means now.
func NormalizeTimestamp(ts, now float64) (float64, error) {
	switch {
	case ts == 0:
		return now, nil
	case ts < 0 || math.IsNaN(ts) || math.IsInf(ts, 0):
		return 0, errors.New("invalid ts")
	case ts > millisecondsAbove:
		return ts / 1000, nil
	default:
		return ts, nil
	}
}
