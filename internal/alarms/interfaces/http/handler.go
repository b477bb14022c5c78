package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	alarmapp "groundstation-safety/internal/alarms/application"
	alarms "groundstation-safety/internal/alarms/domain"
	"groundstation-safety/internal/alarms/infrastructure/journal"
	"groundstation-safety/internal/alarms/interfaces/export"
	"groundstation-safety/internal/audit"
	"groundstation-safety/internal/auth"
	"groundstation-safety/internal/observability/metrics"
)

const (
	timeLayout         = time.RFC3339
	defaultExportRange = 24 * time.Hour
	maxExportEntries   = 10000
)

// Escalation is the engine surface the handler exposes.
type Escalation interface {
	Open() []alarms.Notification
	Dismiss(ctx context.Context, id string) error
	ActiveEmergencySources() []string
	ClearEmergencySources() error
	Brake() alarmapp.BrakeStatus
}

// JournalReader lists journaled notifications.
type JournalReader interface {
	List(ctx context.Context, from, to time.Time, limit int) ([]journal.Entry, error)
}

// Heartbeat reports when the operator console last checked in.
type Heartbeat interface {
	LastHeartbeat() time.Time
}

// Handler provides emergency and notification endpoints.
type Handler struct {
	engine    Escalation
	journal   JournalReader
	heartbeat Heartbeat
	audit     audit.Logger
	logger    *log.Logger
	now       func() time.Time
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithJournal enables the journal export routes.
func WithJournal(reader JournalReader) HandlerOption {
	return func(h *Handler) {
		h.journal = reader
	}
}

// WithHeartbeat includes the console heartbeat in emergency responses.
func WithHeartbeat(hb Heartbeat) HandlerOption {
	return func(h *Handler) {
		h.heartbeat = hb
	}
}

// WithAudit records operator actions.
func WithAudit(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.audit = logger
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *log.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(engine Escalation, opts ...HandlerOption) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("alarms handler: nil engine")
	}
	h := &Handler{engine: engine, logger: log.Default(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

type emergenciesResponse struct {
	Sources       []string             `json:"sources"`
	Active        bool                 `json:"active"`
	Brake         alarmapp.BrakeStatus `json:"brake"`
	LastHeartbeat *time.Time           `json:"last_heartbeat,omitempty"`
}

// ServeHTTP handles /api/v1/emergencies, /api/v1/notifications and
// /api/v1/journal/export.* routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/emergencies":
		h.handleEmergencies(w, r)
	case path == "/api/v1/notifications":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		open := h.engine.Open()
		if open == nil {
			open = []alarms.Notification{}
		}
		writeJSON(w, http.StatusOK, open)
	case strings.HasPrefix(path, "/api/v1/notifications/"):
		h.handleNotificationAction(w, r)
	case strings.HasPrefix(path, "/api/v1/journal/export."):
		h.handleExport(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleEmergencies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		if err := h.engine.ClearEmergencySources(); err != nil {
			if errors.Is(err, alarms.ErrRemovalDisabled) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.logger.Printf("alarms: emergency sources cleared by %q", auth.SubjectFromContext(r.Context()))
		h.logAudit(r, audit.ActionClearSources, audit.ResourceEmergency, "all", nil)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sources := h.engine.ActiveEmergencySources()
	if sources == nil {
		sources = []string{}
	}
	resp := emergenciesResponse{
		Sources: sources,
		Active:  len(sources) > 0,
		Brake:   h.engine.Brake(),
	}
	if h.heartbeat != nil {
		if last := h.heartbeat.LastHeartbeat(); !last.IsZero() {
			last = last.UTC()
			resp.LastHeartbeat = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/notifications/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "dismiss" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := parts[0]
	if err := h.engine.Dismiss(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, alarms.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, alarms.ErrNotDismissable):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.logAudit(r, audit.ActionDismiss, audit.ResourceNotification, id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "dismissed": true})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := strings.TrimPrefix(r.URL.Path, "/api/v1/journal/export.")
	if format != "xlsx" && format != "pdf" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if h.journal == nil {
		http.Error(w, "journal not configured", http.StatusServiceUnavailable)
		return
	}
	period, err := h.parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveJournalExport(format, result, time.Since(start))
	}()

	entries, err := h.journal.List(r.Context(), period.From, period.To, maxExportEntries)
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("alarms: journal list: %v", err)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "xlsx":
		data, err = export.BuildJournalXLSX(period, entries)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = export.BuildJournalPDF(period, entries)
		contentType = "application/pdf"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("alarms: journal export %s: %v", format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	filename := "journal-" + period.From.UTC().Format("20060102T150405") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parsePeriod reads from/to, defaulting to the last day.
func (h *Handler) parsePeriod(r *http.Request) (export.Period, error) {
	to := h.now().UTC()
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return export.Period{}, errors.New("to must be RFC3339")
		}
		to = parsed.UTC()
	}
	from := to.Add(-defaultExportRange)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(timeLayout, raw)
		if err != nil {
			return export.Period{}, errors.New("from must be RFC3339")
		}
		from = parsed.UTC()
	}
	if !to.After(from) {
		return export.Period{}, errors.New("to must be after from")
	}
	return export.Period{From: from, To: to}, nil
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	var raw json.RawMessage
	if len(meta) > 0 {
		raw, _ = json.Marshal(meta)
	}
	err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     raw,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Printf("alarms: audit %s: %v", action, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
