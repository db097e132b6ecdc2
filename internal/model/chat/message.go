package chat

import "time"

// Speaker identifies who authored a chat turn.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerAvatar Speaker = "avatar"
)

// Message is a single immutable turn in the rehearsal transcript.
type Message struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
