package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"groundstation-safety/internal/observability/metrics"
	telemetry "groundstation-safety/internal/telemetry/domain"
)

const maxIngestBody = 1 << 20

// Sink receives decoded samples.
type Sink interface {
	Update(name string, value, timestamp float64)
}

// IngestHandler accepts telemetry pushed over HTTP.
type IngestHandler struct {
	sink   Sink
	logger *log.Logger
	now    func() time.Time
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(sink Sink, logger *log.Logger) (*IngestHandler, error) {
	if sink == nil {
		return nil, errors.New("telemetry ingest: nil sink")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{sink: sink, logger: logger, now: time.Now}, nil
}

// ServeHTTP handles POST /ingest/telemetry.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("telemetry ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	samples, err := telemetry.DecodeBatch(body, telemetry.Seconds(h.now()))
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("telemetry ingest: decode error: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	for _, sample := range samples {
		h.sink.Update(sample.Name, sample.Value, sample.Timestamp)
	}
	metrics.AddTelemetryUpdates("http", len(samples))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"accepted": len(samples)})
}
