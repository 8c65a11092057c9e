package state

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps conversations in process memory. Values are copied on
// the way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*ConversationState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*ConversationState)}
}

func (m *MemoryStore) Load(_ context.Context, conversationID string) (*ConversationState, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrInvalidConversation
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.items[conversationID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilState
	}
	if err := st.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[st.ID] = st.Clone()
	return nil
}
