package session

import (
	"context"
	"time"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
)

// DefaultTTL is how long an idle consultation is kept.
const DefaultTTL = 24 * time.Hour

// Store persists conversation state keyed by session id. Load returns
// (nil, nil) for an unknown id.
type Store interface {
	Load(ctx context.Context, sessionID string) (*dialogue.ConversationState, error)
	Save(ctx context.Context, sessionID string, state *dialogue.ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}
