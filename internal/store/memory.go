package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pennywise/pennywise/internal/domain"
)

// MemoryConversationStore is an in-process ConversationStore for tests and
// local development.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	convs map[string]map[string]domain.Conversation // userID → conversationID → conversation
}

// NewMemoryConversationStore creates an empty in-memory store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{convs: make(map[string]map[string]domain.Conversation)}
}

func (s *MemoryConversationStore) Get(_ context.Context, userID, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[userID][id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := conv
	copied.Messages = append([]domain.Message(nil), conv.Messages...)
	return &copied, nil
}

func (s *MemoryConversationStore) Save(_ context.Context, userID string, conv *domain.Conversation) error {
	if conv.Title == "" || conv.Title == domain.PlaceholderTitle {
		conv.Title = domain.DeriveTitle(conv.FirstUserText())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for owner, byID := range s.convs {
		if owner == userID {
			continue
		}
		if _, taken := byID[conv.ID]; taken {
			return ErrNotFound
		}
	}

	if s.convs[userID] == nil {
		s.convs[userID] = make(map[string]domain.Conversation)
	}
	copied := *conv
	copied.Messages = append([]domain.Message(nil), conv.Messages...)
	s.convs[userID][conv.ID] = copied
	return nil
}

func (s *MemoryConversationStore) List(_ context.Context, userID string) ([]domain.ConversationMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var metas []domain.ConversationMeta
	for _, conv := range s.convs[userID] {
		metas = append(metas, conv.Meta())
	}
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
			return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
	return metas, nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[userID][id]; !ok {
		return ErrNotFound
	}
	delete(s.convs[userID], id)
	return nil
}
