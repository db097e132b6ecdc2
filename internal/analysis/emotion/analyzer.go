package emotion

import (
	"strings"
)

// Score pairs an emotion name with its strength in [0,1].
type Score struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// DominantIndex returns the position of the strictly highest score, keeping the
// first occurrence on ties. It returns -1 for an empty list.
func DominantIndex(scores []Score) int {
	best := -1
	for i, s := range scores {
		if best == -1 || s.Score > scores[best].Score {
			best = i
		}
	}
	return best
}

// Dominant returns the highest scored entry.
func Dominant(scores []Score) (Score, bool) {
	idx := DominantIndex(scores)
	if idx < 0 {
		return Score{}, false
	}
	return scores[idx], true
}

type bucket struct {
	label    string
	keywords []string
}

// Bucket order doubles as the tie-break order of ScoreText.
var keywordBuckets = []bucket{
	{label: "happy", keywords: []string{
		"happy", "glad", "great", "awesome", "amazing", "love", "thanks", "thank you", "lol", "haha",
		"fun", "enjoy", "nice", "wonderful", "开心", "高兴", "快乐",
	}},
	{label: "sad", keywords: []string{
		"sad", "unhappy", "upset", "cry", "lonely", "depressed", "hurt", "miss", "sorry", "disappointed",
		"难过", "伤心", "失落",
	}},
	{label: "angry", keywords: []string{
		"angry", "furious", "mad", "annoyed", "hate", "rage", "pissed", "ridiculous", "生气", "愤怒",
	}},
	{label: "excited", keywords: []string{
		"excited", "can't wait", "cant wait", "wow", "incredible", "unbelievable", "thrilled", "hype",
		"期待", "激动",
	}},
	{label: "nervous", keywords: []string{
		"nervous", "anxious", "worried", "scared", "awkward", "um", "uh", "not sure", "i guess",
		"afraid", "紧张", "害怕",
	}},
	{label: "calm", keywords: []string{
		"calm", "relaxed", "peaceful", "easy", "chill", "gentle", "平静", "放松",
	}},
}

var punctuationBoost = map[string]int{
	"happy":   2,
	"excited": 3,
}

// ScoreText scores text against the keyword buckets. Scores are normalized so they
// sum to one; text without any cue yields a single neutral entry.
func ScoreText(text string) []Score {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return []Score{{Name: "neutral", Score: 1}}
	}

	raw := make([]int, len(keywordBuckets))
	for i, b := range keywordBuckets {
		for _, word := range b.keywords {
			if containsWord(normalized, word) {
				raw[i] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 0 {
		for i, b := range keywordBuckets {
			switch b.label {
			case "excited":
				raw[i] += exclamations * punctuationBoost["excited"]
			case "happy":
				if exclamations == 1 {
					raw[i] += punctuationBoost["happy"]
				}
			}
		}
	}

	total := 0
	for _, v := range raw {
		total += v
	}
	if total == 0 {
		return []Score{{Name: "neutral", Score: 1}}
	}

	scores := make([]Score, 0, len(raw))
	for i, v := range raw {
		if v == 0 {
			continue
		}
		scores = append(scores, Score{Name: keywordBuckets[i].label, Score: float64(v) / float64(total)})
	}
	return scores
}

// containsWord matches ASCII keywords on word boundaries so "um" does not fire on
// "summer". Non-ASCII keywords fall back to substring matching.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	if !isASCII(word) {
		return strings.Contains(text, word)
	}
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		if (idx == 0 || !isWordByte(text[idx-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = idx + 1
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '\'' || b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
