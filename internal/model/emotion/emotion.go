package emotion

import (
	"fmt"
	"strings"
	"time"
)

// Label is an emotion name reported by an analysis backend. The vocabulary is open:
// labels the service introduces later are carried through untouched.
type Label string

const (
	// Neutral is the default and display fallback.
	Neutral Label = "neutral"
	// Error is reserved for pipeline failures and never produced by a backend.
	Error Label = "error"
)

// NormalizeLabel lower-cases and trims a raw label.
func NormalizeLabel(raw string) Label {
	return Label(strings.ToLower(strings.TrimSpace(raw)))
}

// Channel is the input modality of an analysis request.
type Channel string

const (
	ChannelText  Channel = "text"
	ChannelVoice Channel = "voice"
)

// Request is one analysis round trip. It lives only as long as the call.
type Request struct {
	Channel     Channel
	Text        string
	Audio       []byte
	AudioFormat string
	// Seq is the issuance order assigned by the scheduler.
	Seq         uint64
	SubmittedAt time.Time
}

// Empty reports whether the request carries no payload for its channel.
func (r Request) Empty() bool {
	if r.Channel == ChannelVoice {
		return len(r.Audio) == 0
	}
	return strings.TrimSpace(r.Text) == ""
}

// Kind classifies why an analysis produced no label.
type Kind string

const (
	KindNetwork      Kind = "network_error"
	KindAuth         Kind = "auth_error"
	KindParse        Kind = "parse_error"
	KindInvalidInput Kind = "invalid_input"
)

// AnalysisError is the typed failure carried by an Outcome.
type AnalysisError struct {
	Kind Kind
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one Request. A failed outcome never carries a label,
// so callers can tell it apart from a genuine "neutral" reading.
type Outcome struct {
	OK       bool
	Emotion  Label
	Err      *AnalysisError
	Channel  Channel
	Seq      uint64
	IssuedAt time.Time
}

// Success builds a labelled outcome.
func Success(label Label) Outcome {
	return Outcome{OK: true, Emotion: label}
}

// Failure builds a failed outcome of the given kind.
func Failure(kind Kind, err error) Outcome {
	return Outcome{Err: &AnalysisError{Kind: kind, Err: err}}
}

// Tag stamps the outcome with the issuing request's identity.
func (o Outcome) Tag(req Request) Outcome {
	o.Channel = req.Channel
	o.Seq = req.Seq
	o.IssuedAt = req.SubmittedAt
	return o
}
