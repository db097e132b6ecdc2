package chat

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/avatar"
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

var (
	// ErrInvalidState is returned by every mutation except EndSession once the conversation has ended.
	ErrInvalidState = errors.New("conversation has ended")
	ErrEmptyMessage = errors.New("message text is empty")
)

// Conversation owns one rehearsal transcript and its current emotion.
type Conversation struct {
	mu      sync.Mutex
	state   chat.State
	profile avatar.Profile
	now     func() time.Time
}

// NewConversation starts an active conversation with a neutral emotion.
func NewConversation(profile avatar.Profile, mode chat.Mode) *Conversation {
	return &Conversation{
		state: chat.State{
			ID:             uuid.NewString(),
			AvatarID:       profile.ID,
			Mode:           mode,
			Phase:          chat.PhaseActive,
			CurrentEmotion: string(emotionmodel.Neutral),
			History:        make([]chat.Message, 0, 16),
			CreatedAt:      time.Now().UTC(),
		},
		profile: profile,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.state.ID
}

// SubmitUserMessage appends a user turn.
func (c *Conversation) SubmitUserMessage(text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != chat.PhaseActive {
		return chat.Message{}, ErrInvalidState
	}
	return c.appendLocked(chat.SpeakerUser, text, ""), nil
}

// ReportEmotion records a newly analyzed emotion and appends the avatar's reaction.
// Repeated labels are not deduplicated: each report produces one avatar turn.
func (c *Conversation) ReportEmotion(label emotionmodel.Label) (chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != chat.PhaseActive {
		return chat.Message{}, ErrInvalidState
	}
	c.state.CurrentEmotion = string(label)
	return c.appendLocked(chat.SpeakerAvatar, c.profile.Reply(label), string(label)), nil
}

// EndSession moves the conversation to Ended. Calling it again has no effect.
// It reports whether this call performed the transition.
func (c *Conversation) EndSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == chat.PhaseEnded {
		return false
	}
	c.state.Phase = chat.PhaseEnded
	return true
}

// Snapshot returns a copy that later mutations do not affect.
func (c *Conversation) Snapshot() chat.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.state
	snapshot.History = make([]chat.Message, len(c.state.History))
	copy(snapshot.History, c.state.History)
	return snapshot
}

func (c *Conversation) appendLocked(speaker chat.Speaker, text, emotion string) chat.Message {
	message := chat.Message{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Emotion:   emotion,
		Timestamp: c.now(),
	}
	c.state.History = append(c.state.History, message)
	return message
}
