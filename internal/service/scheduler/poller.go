package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	emotionmodel "github.com/zhouzirui/date-rehearsal/backend/internal/model/emotion"
)

const defaultInterval = 10 * time.Second

// Analyzer performs one emotion analysis round trip.
type Analyzer interface {
	Analyze(ctx context.Context, req emotionmodel.Request) emotionmodel.Outcome
}

// TextSource returns the text to analyze on this tick. ok is false when nothing new
// has been typed since the last tick.
type TextSource func() (text string, ok bool)

// PollerConfig configures periodic text analysis.
type PollerConfig struct {
	Interval  time.Duration
	Analyzer  Analyzer
	Gate      *Gate
	Source    TextSource
	OnOutcome func(emotionmodel.Outcome)
}

// Poller analyzes the conversation text on a fixed interval with at most one
// request in flight.
type Poller struct {
	interval  time.Duration
	analyzer  Analyzer
	gate      *Gate
	source    TextSource
	onOutcome func(emotionmodel.Outcome)

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	gate := cfg.Gate
	if gate == nil {
		gate = NewGate()
	}
	return &Poller{
		interval:  interval,
		analyzer:  cfg.Analyzer,
		gate:      gate,
		source:    cfg.Source,
		onOutcome: cfg.OnOutcome,
	}
}

// Task is a running poll loop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops future ticks and returns without waiting for an in-flight request.
// That request's outcome is discarded.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the tick loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Start begins ticking. The first request is issued one interval after Start.
func (p *Poller) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()

	return task
}

// tick issues one request unless one is still pending or there is nothing to send.
func (p *Poller) tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		log.Printf("[scheduler] previous text analysis still in flight, skip tick")
		return false
	}

	text, ok := "", false
	if p.source != nil {
		text, ok = p.source()
	}
	if !ok {
		p.inFlight.Store(false)
		return false
	}

	req := p.gate.Issue(emotionmodel.Request{
		Channel: emotionmodel.ChannelText,
		Text:    text,
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)

		outcome := p.analyzer.Analyze(ctx, req)
		if ctx.Err() != nil {
			log.Printf("[scheduler] discard text outcome seq=%d after cancel", req.Seq)
			return
		}
		deliver(p.gate, outcome, p.onOutcome)
	}()
	return true
}

// InFlight reports whether a text request is pending.
func (p *Poller) InFlight() bool {
	return p.inFlight.Load()
}

// Wait blocks until every issued request has returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func deliver(gate *Gate, outcome emotionmodel.Outcome, fn func(emotionmodel.Outcome)) {
	if !gate.Apply(outcome, fn) {
		log.Printf("[scheduler] discard stale %s outcome seq=%d", outcome.Channel, outcome.Seq)
	}
}
