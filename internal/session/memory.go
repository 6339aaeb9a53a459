package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/consult-funnel/internal/dialogue"
)

// MemoryStore keeps sessions in process memory. States are stored as JSON so
// callers never share a pointer with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*dialogue.ConversationState, error) {
	s.mu.RLock()
	data, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state dialogue.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session: failed to decode state: %w", err)
	}
	return &state, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, state *dialogue.ConversationState) error {
	if state == nil {
		return errors.New("session: state cannot be nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	s.mu.Lock()
	s.items[sessionID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.items, sessionID)
	s.mu.Unlock()
	return nil
}
