package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/internal/leads"
	"github.com/wolfman30/consult-funnel/pkg/logging"
)

const maxRequestBytes = 16 << 10

// ChatService is the surface the HTTP and WebSocket transports drive.
type ChatService interface {
	Start(ctx context.Context) (*Response, error)
	SendMessage(ctx context.Context, sessionID, message string) (*Response, error)
	SelectOption(ctx context.Context, sessionID, key string) (*Response, error)
	SubmitLead(ctx context.Context, sessionID string, form LeadForm) (*LeadResponse, error)
	Reset(ctx context.Context, sessionID string) (*Response, error)
	Get(ctx context.Context, sessionID string) (*Snapshot, error)
	Summary(ctx context.Context, sessionID string) (string, error)
}

var _ ChatService = (*Service)(nil)

// MessageRequest is the body of POST /chat/sessions/{sessionID}/messages.
type MessageRequest struct {
	Message string `json:"message"`
}

// SelectionRequest is the body of POST /chat/sessions/{sessionID}/selection.
type SelectionRequest struct {
	Option string `json:"option"`
}

// SummaryResponse is returned by GET /chat/sessions/{sessionID}/summary.
type SummaryResponse struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

// Handler wires HTTP requests to the conversation service.
type Handler struct {
	service ChatService
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service ChatService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Start handles POST /chat/sessions.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Start(r.Context())
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /chat/sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	snap, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// Message handles POST /chat/sessions/{sessionID}/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.SendMessage(r.Context(), id, req.Message)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Select handles POST /chat/sessions/{sessionID}/selection.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req SelectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.SelectOption(r.Context(), id, req.Option)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SubmitLead handles POST /chat/sessions/{sessionID}/lead.
func (h *Handler) SubmitLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var form LeadForm
	if !h.decode(w, r, &form) {
		return
	}
	resp, err := h.service.SubmitLead(r.Context(), id, form)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// Reset handles DELETE /chat/sessions/{sessionID}.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	resp, err := h.service.Reset(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Summary handles GET /chat/sessions/{sessionID}/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SummaryResponse{SessionID: id, Summary: summary})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request", "error", err, "path", r.URL.Path)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dialogue.ErrUnknownOption),
		errors.Is(err, leads.ErrInvalidName),
		errors.Is(err, leads.ErrMissingContact),
		errors.Is(err, leads.ErrInvalidUrgency):
		return http.StatusBadRequest
	case errors.Is(err, dialogue.ErrSelectionNotExpected),
		errors.Is(err, dialogue.ErrOptionAlreadySelected),
		errors.Is(err, ErrLeadNotExpected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, sessionID string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("conversation request failed", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to process request", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
