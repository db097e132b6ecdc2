// Package feedback turns a finished transcript into an end-of-session summary.
package feedback

import (
	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

// Tier is the engagement bucket derived from how many messages the user sent.
type Tier string

const (
	TierLow      Tier = "low engagement"
	TierBalanced Tier = "balanced"
	TierHigh     Tier = "high engagement"
)

const (
	lowThreshold  = 5
	highThreshold = 10
)

var tierMessages = map[Tier]string{
	TierLow:      "You seemed a bit shy. Try to open up more in your next conversation!",
	TierBalanced: "You maintained a good balance in the conversation. Keep it up!",
	TierHigh:     "Great job! You were very engaging in the conversation.",
}

const defaultTone = "Your emotions were balanced throughout the conversation."

// 精确匹配，"joy" 之类的标签走默认文案
var toneMessages = map[emotionmodel.Label]string{
	"happy":   "You seemed happy during the conversation. That's great!",
	"nervous": "You appeared a bit nervous. Remember, it's okay to take your time and breathe.",
	"sad":     "You seemed a bit down. Is everything okay? Remember, it's just a practice session.",
}

// Report is the feedback shown when a session ends.
type Report struct {
	Engagement        Tier               `json:"engagement"`
	EngagementMessage string             `json:"engagementMessage"`
	ToneMessage       string             `json:"toneMessage"`
	UserMessageCount  int                `json:"userMessageCount"`
	FinalEmotion      emotionmodel.Label `json:"finalEmotion"`
}

// Synthesize derives the report. It has no side effects.
func Synthesize(history []chat.Message, finalEmotion emotionmodel.Label) Report {
	count := chat.CountUserMessages(history)
	tier := TierFor(count)

	tone, ok := toneMessages[finalEmotion]
	if !ok {
		tone = defaultTone
	}

	return Report{
		Engagement:        tier,
		EngagementMessage: tierMessages[tier],
		ToneMessage:       tone,
		UserMessageCount:  count,
		FinalEmotion:      finalEmotion,
	}
}

// TierFor buckets a user message count.
func TierFor(count int) Tier {
	switch {
	case count < lowThreshold:
		return TierLow
	case count > highThreshold:
		return TierHigh
	default:
		return TierBalanced
	}
}
