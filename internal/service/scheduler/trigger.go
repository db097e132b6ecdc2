package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

var (
	// ErrBusy is returned while a voice analysis is still pending.
	ErrBusy = errors.New("scheduler: analysis in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scheduler: trigger closed")
)

// Trigger issues exactly one voice analysis per completed recording.
type Trigger struct {
	analyzer  Analyzer
	gate      *Gate
	onOutcome func(emotionmodel.Outcome)

	mu     sync.Mutex
	busy   bool
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTrigger(analyzer Analyzer, gate *Gate, onOutcome func(emotionmodel.Outcome)) *Trigger {
	if gate == nil {
		gate = NewGate()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		analyzer:  analyzer,
		gate:      gate,
		onOutcome: onOutcome,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Fire submits a recording. It returns immediately; the outcome is delivered
// through the gate when the round trip finishes.
func (t *Trigger) Fire(audio []byte, format string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.busy {
		t.mu.Unlock()
		return ErrBusy
	}
	t.busy = true
	ctx := t.ctx
	t.wg.Add(1)
	t.mu.Unlock()

	// the gate lock must not be taken under t.mu
	req := t.gate.Issue(emotionmodel.Request{
		Channel:     emotionmodel.ChannelVoice,
		Audio:       audio,
		AudioFormat: format,
	})

	go func() {
		defer t.wg.Done()

		outcome := t.analyzer.Analyze(ctx, req)

		t.mu.Lock()
		t.busy = false
		t.mu.Unlock()

		if ctx.Err() != nil {
			log.Printf("[scheduler] discard voice outcome seq=%d after close", req.Seq)
			return
		}
		deliver(t.gate, outcome, t.onOutcome)
	}()
	return nil
}

// Busy reports whether a voice analysis is pending.
func (t *Trigger) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Close cancels the pending call, if any, and discards its outcome.
func (t *Trigger) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
}

// Wait blocks until the pending call has returned.
func (t *Trigger) Wait() {
	t.wg.Wait()
}
