package chat

import "time"

// Mode selects the input channel a rehearsal runs on.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// ParseMode normalizes a client supplied mode, defaulting to text.
func ParseMode(raw string) (Mode, bool) {
	switch raw {
	case "", string(ModeText):
		return ModeText, true
	case string(ModeVoice):
		return ModeVoice, true
	default:
		return "", false
	}
}

// Phase tracks the one-way lifecycle of a conversation.
type Phase string

const (
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// State is a point-in-time copy of a conversation.
type State struct {
	ID             string    `json:"id"`
	AvatarID       string    `json:"avatarId"`
	Mode           Mode      `json:"mode"`
	Phase          Phase     `json:"phase"`
	CurrentEmotion string    `json:"currentEmotion"`
	History        []Message `json:"history"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CountUserMessages counts turns authored by the user.
func CountUserMessages(history []Message) int {
	n := 0
	for _, msg := range history {
		if msg.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}
