package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "gs_"

	resultSuccess = "success"
	resultError   = "error"

	classificationNominal   = "nominal"
	classificationDegraded  = "degraded"
	classificationEmergency = "emergency"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	telemetryUpdates *prometheus.CounterVec
	classifications  *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	lookupDrops        *prometheus.CounterVec
	emergencySources   prometheus.Gauge

	commandSends *prometheus.CounterVec

	journalExportTotal   *prometheus.CounterVec
	journalExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		telemetryUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_updates_total",
				Help: "Total signal updates by ingestion source",
			},
			[]string{"source"},
		)
		classifications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "classifications_total",
				Help: "Total health classifications by result",
			},
			[]string{"result"},
		)

		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total emitted notifications by condition and severity",
			},
			[]string{"condition", "severity"},
		)
		lookupDrops = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "lookup_drops_total",
				Help: "Updates dropped because a name lookup was unknown or failed",
			},
			[]string{"kind"},
		)
		emergencySources = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "emergency_sources",
				Help: "Number of registered emergency sources",
			},
		)

		commandSends = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_sends_total",
				Help: "Total vehicle commands by name and result",
			},
			[]string{"command", "result"},
		)

		journalExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "journal_export_total",
				Help: "Total journal export operations by format and result",
			},
			[]string{"format", "result"},
		)
		journalExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "journal_export_latency_seconds",
				Help:    "Journal export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			telemetryUpdates,
			classifications,
			notificationsTotal,
			lookupDrops,
			emergencySources,
			commandSends,
			journalExportTotal,
			journalExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddTelemetryUpdates counts signal updates delivered by an ingestion source.
func AddTelemetryUpdates(source string, count int) {
	if count <= 0 {
		return
	}
	if source == "" {
		source = "unknown"
	}
	if telemetryUpdates != nil {
		telemetryUpdates.WithLabelValues(source).Add(float64(count))
	}
}

// IncClassification counts one health classification.
func IncClassification(emergency, degraded bool) {
	result := classificationNominal
	switch {
	case emergency:
		result = classificationEmergency
	case degraded:
		result = classificationDegraded
	}
	if classifications != nil {
		classifications.WithLabelValues(result).Inc()
	}
}

// IncNotification counts an emitted notification.
func IncNotification(condition, severity string) {
	if condition == "" {
		condition = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(condition, severity).Inc()
	}
}

// IncLookupDrop counts an update dropped after a name lookup.
func IncLookupDrop(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if lookupDrops != nil {
		lookupDrops.WithLabelValues(kind).Inc()
	}
}

// SetEmergencySources sets the registered emergency source count.
func SetEmergencySources(count int) {
	if count < 0 {
		count = 0
	}
	if emergencySources != nil {
		emergencySources.Set(float64(count))
	}
}

// IncCommandSend counts a vehicle command attempt.
func IncCommandSend(command, result string) {
	if command == "" {
		command = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if commandSends != nil {
		commandSends.WithLabelValues(command, result).Inc()
	}
}

// ObserveJournalExport records export latency and result.
func ObserveJournalExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if journalExportTotal != nil {
		journalExportTotal.WithLabelValues(format, result).Inc()
	}
	if journalExportLatency != nil {
		journalExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
