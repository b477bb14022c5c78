package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"groundstation-safety/internal/audit"
	"groundstation-safety/internal/auth"
	commandsapp "groundstation-safety/internal/commands/application"
	commands "groundstation-safety/internal/commands/domain"
)

// Service is the command surface exposed over HTTP.
type Service interface {
	IssueCommand(ctx context.Context, req commandsapp.IssueRequest) (commands.Command, error)
	Recent() []commands.Command
}

// Handler provides command HTTP endpoints.
type Handler struct {
	service     Service
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service Service, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP handles POST/GET /api/v1/commands.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.service.Recent())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req commandsapp.IssueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	cmd, err := h.service.IssueCommand(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, commandsapp.ErrNotAllowed):
			http.Error(w, err.Error(), http.StatusForbidden)
		case cmd.ID != "":
			// published but the link failed
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(cmd)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		h.logAudit(r, cmd)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cmd)

	h.logAudit(r, cmd)
}

func (h *Handler) logAudit(r *http.Request, cmd commands.Command) {
	if h.auditLogger == nil || cmd.ID == "" {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"name":   cmd.Name,
		"value":  cmd.Value,
		"status": cmd.Status,
	})
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       audit.ActionIssueCommand,
		ResourceType: audit.ResourceCommand,
		ResourceID:   cmd.ID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Printf("commands: audit %s: %v", cmd.ID, err)
	}
}
