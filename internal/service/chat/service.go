package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
)

var (
	ErrAvatarNotFound  = errors.New("avatar not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidMode     = errors.New("mode must be text or voice")
)

// Service keeps active conversations in memory.
type Service struct {
	avatars avatar.Store

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewService bootstraps the in-memory chat service. Sessions do not survive a restart.
func NewService(avatars avatar.Store) *Service {
	return &Service{
		avatars:       avatars,
		conversations: make(map[string]*Conversation),
	}
}

// CreateConversation starts a conversation with the given avatar. An empty avatar id
// selects the default avatar.
func (s *Service) CreateConversation(_ context.Context, avatarID string, mode chat.Mode) (*Conversation, error) {
	if avatarID == "" {
		avatarID = avatar.DefaultID
	}

	profile, ok := s.avatars.FindByID(avatarID)
	if !ok {
		return nil, ErrAvatarNotFound
	}

	conversation := NewConversation(profile, mode)

	s.mu.Lock()
	s.conversations[conversation.ID()] = conversation
	s.mu.Unlock()

	return conversation, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return conversation, nil
}

// Delete forgets a conversation.
func (s *Service) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
}
