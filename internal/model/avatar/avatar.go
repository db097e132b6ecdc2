package avatar

import (
	"fmt"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// DefaultID is used when a session does not pick an avatar.
const DefaultID = "riley"

// Profile describes a rehearsal partner and how it answers detected emotions.
type Profile struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Tagline     string                   `json:"tagline"`
	Description string                   `json:"description,omitempty"`
	Replies     map[emotion.Label]string `json:"-"`
}

// DefaultReplies is shared by every avatar for labels its own table omits.
var DefaultReplies = map[emotion.Label]string{
	"happy":         "I'm feeling great! What about you?",
	"sad":           "I'm here for you. Let's talk about it.",
	"excited":       "That sounds amazing!",
	"nervous":       "Don't worry, you're doing great.",
	emotion.Neutral: "That's interesting! Tell me more.",
}

// Reply picks the avatar line for label. Unknown labels get a generic sentence.
func (p Profile) Reply(label emotion.Label) string {
	if line, ok := p.Replies[label]; ok && line != "" {
		return line
	}
	if line, ok := DefaultReplies[label]; ok {
		return line
	}
	return fmt.Sprintf("I'm sensing %s. Tell me more about how you're feeling.", label)
}

// Seed provides the built-in rehearsal partners.
func Seed() []Profile {
	return []Profile{
		{
			ID:          DefaultID,
			Name:        "Riley",
			Tagline:     "Easygoing first date",
			Description: "Warm and curious, happy to let you lead the conversation.",
		},
		{
			ID:          "sam",
			Name:        "Sam",
			Tagline:     "Playful banter",
			Description: "Quick with a joke and likes a bit of teasing.",
			Replies: map[emotion.Label]string{
				"happy":   "Okay, that smile is contagious. What's got you in such a good mood?",
				"nervous": "Relax, I don't bite. Mostly.",
				"angry":   "Whoa, who do I need to have words with?",
			},
		},
		{
			ID:          "jordan",
			Name:        "Jordan",
			Tagline:     "Reserved and thoughtful",
			Description: "Takes a while to open up and listens more than talks.",
			Replies: map[emotion.Label]string{
				"sad":      "Take your time. I'm listening.",
				"neutral":  "Hm. Go on.",
				"calmness": "This is nice. Quiet, easy.",
			},
		},
	}
}
