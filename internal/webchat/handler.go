package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/consult-funnel/internal/conversation"
	"github.com/wolfman30/consult-funnel/internal/dialogue"
	"github.com/wolfman30/consult-funnel/pkg/logging"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultTurnTimeout = 30 * time.Second
	// maxFrameBytes matches the HTTP API's request body limit.
	maxFrameBytes = 16 << 10
)

// Handler serves the chat over a WebSocket. Each frame is one JSON message and
// every request frame is answered before the next one is read.
type Handler struct {
	service     conversation.ChatService
	logger      *logging.Logger
	turnTimeout time.Duration
	frameLimit  rate.Limit
	frameBurst  int
}

// Option configures a Handler.
type Option func(*Handler)

// WithFrameRateLimit caps each connection at perSecond request frames with
// the given burst. Frames over the limit are answered with a 429 error and
// never reach the chat service. A non-positive rate disables the limit.
func WithFrameRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond <= 0 {
			h.frameLimit = 0
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.frameLimit = rate.Limit(perSecond)
		h.frameBurst = burst
	}
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type   string                 `json:"type"` // "message", "select", "lead", "reset", "ping"
	Text   string                 `json:"text,omitempty"`
	Option string                 `json:"option,omitempty"`
	Lead   *conversation.LeadForm `json:"lead,omitempty"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "session", "history", "typing", "reply", "error", "pong"
	SessionID string           `json:"session_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Status    int              `json:"status,omitempty"`
	Reply     *dialogue.Reply  `json:"reply,omitempty"`
	LeadID    string           `json:"lead_id,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is a simplified message for history responses.
type HistoryMessage struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates a web chat handler.
func NewHandler(service conversation.ChatService, logger *logging.Logger, opts ...Option) *Handler {
	if service == nil {
		panic("webchat: chat service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		service:     service,
		logger:      logger,
		turnTimeout: defaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
// An existing session is resumed with ?session=<id>; otherwise a new one is
// started.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	conn.MaxPayloadBytes = maxFrameBytes

	var limiter *rate.Limiter
	if h.frameLimit > 0 {
		limiter = rate.NewLimiter(h.frameLimit, h.frameBurst)
	}

	sessionID, err := h.open(ctx, conn, strings.TrimSpace(r.URL.Query().Get("session")))
	if err != nil {
		h.logger.Error("webchat: failed to open session", "error", err)
		h.send(conn, OutboundMessage{Type: "error", Text: "failed to start session", Status: http.StatusInternalServerError})
		return
	}
	logger := h.logger.WithSession(sessionID)
	logger.Info("webchat: connection opened")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				// The oversized frame is drained on the next read.
				logger.Warn("webchat: frame too large", "limit_bytes", maxFrameBytes)
				h.send(conn, OutboundMessage{Type: "error", Text: "message too large", Status: http.StatusRequestEntityTooLarge})
				continue
			}
			logger.Debug("webchat: connection closed", "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			h.send(conn, OutboundMessage{Type: "pong"})
			continue
		case "message", "select", "lead", "reset":
		default:
			h.send(conn, OutboundMessage{Type: "error", Text: "unknown message type", Status: http.StatusBadRequest})
			continue
		}

		if limiter != nil && !limiter.Allow() {
			logger.Warn("webchat: frame rate limited", "type", msg.Type)
			h.send(conn, OutboundMessage{Type: "error", SessionID: sessionID, Text: "rate limit exceeded", Status: http.StatusTooManyRequests})
			continue
		}

		h.send(conn, OutboundMessage{Type: "typing"})
		out := h.dispatch(ctx, sessionID, msg)
		if out.Type == "error" && out.Status == http.StatusNotFound {
			// The session expired while the socket stayed open.
			h.send(conn, out)
			return
		}
		h.send(conn, out)
	}
}

// open resumes or starts a session and sends its current view.
func (h *Handler) open(ctx context.Context, conn *websocket.Conn, sessionID string) (string, error) {
	if sessionID != "" {
		snap, err := h.service.Get(ctx, sessionID)
		switch {
		case err == nil:
			h.send(conn, OutboundMessage{Type: "session", SessionID: snap.SessionID})
			h.send(conn, OutboundMessage{Type: "history", SessionID: snap.SessionID, Messages: historyOf(snap.History)})
			reply := snap.Reply
			h.send(conn, OutboundMessage{Type: "reply", SessionID: snap.SessionID, Reply: &reply})
			return snap.SessionID, nil
		case !errors.Is(err, conversation.ErrSessionNotFound):
			return "", err
		}
	}

	resp, err := h.service.Start(ctx)
	if err != nil {
		return "", err
	}
	h.send(conn, OutboundMessage{Type: "session", SessionID: resp.SessionID})
	h.send(conn, OutboundMessage{Type: "reply", SessionID: resp.SessionID, Reply: &resp.Reply})
	return resp.SessionID, nil
}

func (h *Handler) dispatch(ctx context.Context, sessionID string, msg InboundMessage) OutboundMessage {
	ctx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	var (
		resp   *conversation.Response
		leadID string
		err    error
	)
	switch msg.Type {
	case "message":
		resp, err = h.service.SendMessage(ctx, sessionID, msg.Text)
	case "select":
		resp, err = h.service.SelectOption(ctx, sessionID, msg.Option)
	case "lead":
		var form conversation.LeadForm
		if msg.Lead != nil {
			form = *msg.Lead
		}
		if form.Source == "" {
			form.Source = "webchat"
		}
		var lr *conversation.LeadResponse
		lr, err = h.service.SubmitLead(ctx, sessionID, form)
		if lr != nil {
			resp, leadID = &lr.Response, lr.LeadID
		}
	case "reset":
		resp, err = h.service.Reset(ctx, sessionID)
	}

	if err != nil {
		status := conversation.StatusFor(err)
		text := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.Error("webchat: request failed", "error", err, "session_id", sessionID, "type", msg.Type)
			text = "잠시 후 다시 시도해 주세요."
		}
		return OutboundMessage{Type: "error", SessionID: sessionID, Text: text, Status: status}
	}
	return OutboundMessage{Type: "reply", SessionID: sessionID, Reply: &resp.Reply, LeadID: leadID}
}

func (h *Handler) send(conn *websocket.Conn, msg OutboundMessage) {
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Debug("webchat: send failed", "error", err, "type", msg.Type)
	}
}

func historyOf(turns []dialogue.Turn) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, HistoryMessage{
			Role:      string(t.Role),
			Text:      t.Text,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out
}
