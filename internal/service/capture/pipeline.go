package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the recording state of a Pipeline.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

var (
	ErrAlreadyRecording = errors.New("capture: already recording")
	// ErrBusy is returned when the previous recording is still being analyzed.
	ErrBusy = errors.New("capture: analysis in progress")
	// ErrDevice wraps any failure to acquire the input device.
	ErrDevice = errors.New("capture: device unavailable")
	ErrClosed = errors.New("capture: pipeline closed")
	// ErrNotRecording is returned for audio pushed while no recording is open.
	ErrNotRecording = errors.New("capture: not recording")
)

const (
	defaultSampleRate   = 16000
	defaultChannels     = 1
	defaultLevelRefresh = 50 * time.Millisecond
)

// Submitter receives finalized recordings.
type Submitter interface {
	Fire(audio []byte, format string) error
	Busy() bool
}

// Config configures a Pipeline.
type Config struct {
	Device       Device
	Submitter    Submitter
	SampleRate   int
	Channels     int
	LevelRefresh time.Duration
	// OnLevel receives the latest level at the refresh cadence while recording.
	OnLevel func(level float64)
	// OnState receives every state transition.
	OnState func(State)
}

// Pipeline records one utterance at a time and hands the WAV payload to the submitter.
type Pipeline struct {
	cfg Config

	mu        sync.Mutex
	state     State
	acquiring bool
	closed    bool
	chunks    [][]byte
	level     float64
	stream    Stream
	stopMeter chan struct{}
	meterDone chan struct{}
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaultChannels
	}
	if cfg.LevelRefresh <= 0 {
		cfg.LevelRefresh = defaultLevelRefresh
	}
	return &Pipeline{cfg: cfg, state: StateIdle}
}

// Start acquires the device and begins recording.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.state == StateRecording || p.acquiring:
		p.mu.Unlock()
		return ErrAlreadyRecording
	case p.cfg.Submitter != nil && p.cfg.Submitter.Busy():
		p.mu.Unlock()
		return ErrBusy
	}
	p.acquiring = true
	p.mu.Unlock()

	stream, err := p.cfg.Device.Open(ctx, p.onData)

	p.mu.Lock()
	p.acquiring = false
	if err != nil {
		p.mu.Unlock()
		log.Printf("[capture] device open failed: %v", err)
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if p.closed {
		p.mu.Unlock()
		_ = stream.Close()
		return ErrClosed
	}

	p.stream = stream
	p.chunks = nil
	p.level = 0
	p.state = StateRecording
	p.stopMeter = make(chan struct{})
	p.meterDone = make(chan struct{})
	go p.meter(p.stopMeter, p.meterDone)
	p.mu.Unlock()

	p.notifyState(StateRecording)
	return nil
}

// Stop ends the recording and submits it. It is a no-op when idle.
func (p *Pipeline) Stop() error {
	pcm, recorded := p.halt()
	if !recorded {
		return nil
	}

	if len(pcm) == 0 {
		log.Printf("[capture] recording contained no audio, nothing submitted")
		return nil
	}
	if p.cfg.Submitter == nil {
		return nil
	}

	payload := EncodeWAV(pcm, p.cfg.SampleRate, p.cfg.Channels)
	if err := p.cfg.Submitter.Fire(payload, "wav"); err != nil {
		return fmt.Errorf("submit recording: %w", err)
	}
	return nil
}

// Close releases the device, discarding any recording in progress.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	if _, recorded := p.halt(); recorded {
		log.Printf("[capture] teardown while recording, audio discarded")
	}
}

// halt moves to Idle, stops metering and releases the device.
func (p *Pipeline) halt() ([]byte, bool) {
	p.mu.Lock()
	if p.state != StateRecording {
		p.mu.Unlock()
		return nil, false
	}

	p.state = StateIdle
	stream := p.stream
	p.stream = nil
	chunks := p.chunks
	p.chunks = nil
	p.level = 0
	close(p.stopMeter)
	meterDone := p.meterDone
	p.mu.Unlock()

	<-meterDone
	if err := stream.Close(); err != nil {
		log.Printf("[capture] device release failed: %v", err)
	}
	p.notifyState(StateIdle)

	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}
	pcm := make([]byte, 0, size)
	for _, chunk := range chunks {
		pcm = append(pcm, chunk...)
	}
	return pcm, true
}

func (p *Pipeline) onData(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRecording {
		return
	}
	// 设备可能复用缓冲区
	p.chunks = append(p.chunks, append([]byte(nil), chunk...))
	p.level = Level(chunk)
}

func (p *Pipeline) meter(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.LevelRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.cfg.OnLevel != nil {
				p.cfg.OnLevel(p.Level())
			}
		}
	}
}

func (p *Pipeline) notifyState(state State) {
	if p.cfg.OnState != nil {
		p.cfg.OnState(state)
	}
}

// State returns the current recording state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Level returns the most recent chunk level, 0 when idle.
func (p *Pipeline) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Chunks returns the number of chunks buffered so far.
func (p *Pipeline) Chunks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}
