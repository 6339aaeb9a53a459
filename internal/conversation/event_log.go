package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/consult-funnel/pkg/logging"
)

// maxLoggedMessageRunes caps how much of a visitor message lands in the log.
const maxLoggedMessageRunes = 200

// FunnelEvent is one structured step of a consultation. All events share the
// same base fields so they can be filtered with grep:
//
//	grep '"event":"stage_changed"' /var/log/app.log
//	grep '"session_id":"3f2a..."' /var/log/app.log
type FunnelEvent struct {
	Time      string         `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	LeadID    string         `json:"lead_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventLogger emits one JSON line per funnel event. A nil EventLogger is a
// no-op.
type EventLogger struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewEventLogger creates a funnel event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventLogger{logger: logger, now: time.Now}
}

// Log emits a structured event.
func (e *EventLogger) Log(_ context.Context, event, sessionID, leadID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	evt := FunnelEvent{
		Time:      now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		SessionID: sessionID,
		LeadID:    leadID,
		Data:      data,
	}
	b, err := json.Marshal(evt)
	if err != nil {
		e.logger.Warn("conversation: event encode failed", "event", event, "error", err)
		return
	}
	e.logger.Info(string(b))
}

func (e *EventLogger) SessionStarted(ctx context.Context, sessionID string) {
	e.Log(ctx, "session_started", sessionID, "", nil)
}

func (e *EventLogger) MessageReceived(ctx context.Context, sessionID, stage, message string) {
	e.Log(ctx, "message_received", sessionID, "", map[string]any{
		"stage":   stage,
		"message": truncateRunes(message, maxLoggedMessageRunes),
	})
}

func (e *EventLogger) StageChanged(ctx context.Context, sessionID, from, to string) {
	e.Log(ctx, "stage_changed", sessionID, "", map[string]any{
		"from": from,
		"to":   to,
	})
}

func (e *EventLogger) OptionSelected(ctx context.Context, sessionID, key string) {
	e.Log(ctx, "option_selected", sessionID, "", map[string]any{
		"option": key,
	})
}

func (e *EventLogger) LeadSubmitted(ctx context.Context, sessionID, leadID, source string) {
	e.Log(ctx, "lead_submitted", sessionID, leadID, map[string]any{
		"source": source,
	})
}

func (e *EventLogger) SessionReset(ctx context.Context, sessionID, previousStage string) {
	e.Log(ctx, "session_reset", sessionID, "", map[string]any{
		"previous_stage": previousStage,
	})
}

func (e *EventLogger) ErrorOccurred(ctx context.Context, sessionID, step string, err error) {
	if err == nil {
		return
	}
	e.Log(ctx, "error", sessionID, "", map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
