package rehearsal

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/date-rehearsal/backend/internal/model/chat"
	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/capture"
	chatsvc "github.com/zhouzirui/date-rehearsal/backend/internal/service/chat"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/feedback"
	"github.com/zhouzirui/date-rehearsal/backend/internal/service/scheduler"
)

var (
	ErrNotVoiceMode = errors.New("session is not in voice mode")
	ErrNotEnded     = errors.New("session has not ended")
	ErrNoPushDevice = errors.New("session audio is not client supplied")
)

// EventType distinguishes session events.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventLevel    EventType = "level"
	EventEnded    EventType = "ended"
)

// Event is pushed to subscribers whenever the session changes.
type Event struct {
	Type     EventType        `json:"type"`
	Snapshot *Snapshot        `json:"snapshot,omitempty"`
	Level    float64          `json:"level,omitempty"`
	Report   *feedback.Report `json:"report,omitempty"`
}

// ErrorView is the visible indicator for the latest failed analysis.
type ErrorView struct {
	Kind    emotionmodel.Kind `json:"kind"`
	Message string            `json:"message"`
}

// Snapshot is the client-facing view of a session.
type Snapshot struct {
	chat.State
	LastError *ErrorView `json:"lastError,omitempty"`
	Recording bool       `json:"recording"`
	Analyzing bool       `json:"analyzing"`
}

// Session binds one conversation to its emotion schedulers.
type Session struct {
	conversation *chatsvc.Conversation
	gate         *scheduler.Gate
	poller       *scheduler.Poller
	task         *scheduler.Task
	trigger      *scheduler.Trigger
	pipeline     *capture.Pipeline
	pushDevice   *capture.PushDevice

	mu           sync.Mutex
	closed       bool
	lastError    *emotionmodel.AnalysisError
	analyzedUpTo int
	report       *feedback.Report
	onEnded      func()

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// SessionOptions configures a new session.
type SessionOptions struct {
	Analyzer     scheduler.Analyzer
	PollInterval time.Duration
	// Device overrides the default client-fed device in voice mode.
	Device       capture.Device
	SampleRate   int
	Channels     int
	LevelRefresh time.Duration
}

func newSession(ctx context.Context, conversation *chatsvc.Conversation, opts SessionOptions) *Session {
	s := &Session{
		conversation: conversation,
		gate:         scheduler.NewGate(),
		subscribers:  make(map[int]chan Event),
	}

	switch conversation.Snapshot().Mode {
	case chat.ModeVoice:
		s.trigger = scheduler.NewTrigger(opts.Analyzer, s.gate, s.apply)

		device := opts.Device
		if device == nil {
			s.pushDevice = capture.NewPushDevice()
			device = s.pushDevice
		}
		s.pipeline = capture.NewPipeline(capture.Config{
			Device:       device,
			Submitter:    s.trigger,
			SampleRate:   opts.SampleRate,
			Channels:     opts.Channels,
			LevelRefresh: opts.LevelRefresh,
			OnLevel: func(level float64) {
				s.publish(Event{Type: EventLevel, Level: level})
			},
			OnState: func(capture.State) {
				s.publishSnapshot()
			},
		})
	default:
		s.poller = scheduler.NewPoller(scheduler.PollerConfig{
			Interval:  opts.PollInterval,
			Analyzer:  opts.Analyzer,
			Gate:      s.gate,
			Source:    s.pendingText,
			OnOutcome: s.apply,
		})
		s.task = s.poller.Start(ctx)
	}

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.conversation.ID()
}

// SubmitUserMessage appends typed text. It is accepted in both modes.
func (s *Session) SubmitUserMessage(text string) (chat.Message, error) {
	msg, err := s.conversation.SubmitUserMessage(text)
	if err != nil {
		return chat.Message{}, err
	}
	s.publishSnapshot()
	return msg, nil
}

// StartRecording begins capturing an utterance.
func (s *Session) StartRecording(ctx context.Context) error {
	if s.pipeline == nil {
		return ErrNotVoiceMode
	}
	if s.conversation.Snapshot().Phase == chat.PhaseEnded {
		return chatsvc.ErrInvalidState
	}
	return s.pipeline.Start(ctx)
}

// StopRecording finishes the utterance and submits it for analysis. No-op when idle.
func (s *Session) StopRecording() error {
	if s.pipeline == nil {
		return ErrNotVoiceMode
	}
	err := s.pipeline.Stop()
	s.publishSnapshot()
	return err
}

// PushAudio feeds one PCM chunk from a remote client. Chunks sent while idle are
// rejected with capture.ErrNotRecording.
func (s *Session) PushAudio(chunk []byte) error {
	if s.pushDevice == nil {
		return ErrNoPushDevice
	}
	if !s.pushDevice.Push(chunk) {
		return capture.ErrNotRecording
	}
	return nil
}

// End finishes the conversation and returns the feedback report. Repeat calls
// return the same report.
func (s *Session) End() feedback.Report {
	s.conversation.EndSession()
	s.teardown()

	s.mu.Lock()
	first := s.report == nil
	if first {
		snapshot := s.conversation.Snapshot()
		report := feedback.Synthesize(snapshot.History, emotionmodel.Label(snapshot.CurrentEmotion))
		s.report = &report
	}
	report := *s.report
	onEnded := s.onEnded
	s.mu.Unlock()

	s.publishSnapshot()
	s.publish(Event{Type: EventEnded, Report: &report})
	if first && onEnded != nil {
		onEnded()
	}
	return report
}

// Feedback returns the report of an ended session.
func (s *Session) Feedback() (feedback.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return feedback.Report{}, ErrNotEnded
	}
	return *s.report, nil
}

// Snapshot returns the current client view.
func (s *Session) Snapshot() Snapshot {
	snapshot := Snapshot{State: s.conversation.Snapshot()}

	s.mu.Lock()
	if s.lastError != nil {
		snapshot.LastError = &ErrorView{Kind: s.lastError.Kind, Message: s.lastError.Error()}
	}
	s.mu.Unlock()

	if s.pipeline != nil {
		snapshot.Recording = s.pipeline.State() == capture.StateRecording
	}
	if s.trigger != nil {
		snapshot.Analyzing = s.trigger.Busy()
	}
	if s.poller != nil {
		snapshot.Analyzing = s.poller.InFlight()
	}
	return snapshot
}

// LastError returns the latest analysis failure, nil after a success.
func (s *Session) LastError() *emotionmodel.AnalysisError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Subscribe registers for events. Slow subscribers miss events rather than block the session;
// level events are dropped first.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if _, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(ch)
			}
			s.subMu.Unlock()
		})
	}
}

// Close tears down capture and scheduling and disconnects subscribers.
func (s *Session) Close() {
	s.teardown()

	s.subMu.Lock()
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.pipeline != nil {
		s.pipeline.Close()
	}
	if s.trigger != nil {
		s.trigger.Close()
	}
	if s.task != nil {
		s.task.Cancel()
	}
}

// apply runs under the gate lock, in issuance order.
func (s *Session) apply(outcome emotionmodel.Outcome) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if outcome.OK {
		s.lastError = nil
		if _, err := s.conversation.ReportEmotion(outcome.Emotion); err != nil {
			log.Printf("[rehearsal] session %s drop emotion %q: %v", s.ID(), outcome.Emotion, err)
		}
	} else {
		s.lastError = outcome.Err
		log.Printf("[rehearsal] session %s analysis seq=%d failed: %v", s.ID(), outcome.Seq, outcome.Err)
	}
	s.mu.Unlock()

	s.publishSnapshot()
}

// pendingText joins user messages typed since the previous tick.
func (s *Session) pendingText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.conversation.Snapshot().History
	if s.analyzedUpTo >= len(history) {
		return "", false
	}

	var parts []string
	for _, msg := range history[s.analyzedUpTo:] {
		if msg.Speaker == chat.SpeakerUser {
			parts = append(parts, msg.Text)
		}
	}
	s.analyzedUpTo = len(history)

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func (s *Session) publishSnapshot() {
	snapshot := s.Snapshot()
	s.publish(Event{Type: EventSnapshot, Snapshot: &snapshot})
}

func (s *Session) publish(event Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- event:
			continue
		default:
		}
		if event.Type == EventLevel {
			continue
		}
		// a full queue loses its oldest entry, never a state change
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}
