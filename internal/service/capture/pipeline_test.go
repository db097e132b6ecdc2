package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDevice struct {
	mu       sync.Mutex
	openErr  error
	onData   func([]byte)
	opened   int
	released int
}

func (d *fakeDevice) Open(ctx context.Context, onData func([]byte)) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened++
	d.onData = onData
	return streamFunc(func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.released++
		d.onData = nil
		return nil
	}), nil
}

func (d *fakeDevice) emit(chunk []byte) {
	d.mu.Lock()
	onData := d.onData
	d.mu.Unlock()
	if onData != nil {
		onData(chunk)
	}
}

func (d *fakeDevice) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.released
}

type streamFunc func() error

func (f streamFunc) Close() error { return f() }

type fakeSubmitter struct {
	mu      sync.Mutex
	busy    bool
	fired   [][]byte
	formats []string
}

func (s *fakeSubmitter) Fire(audio []byte, format string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired = append(s.fired, audio)
	s.formats = append(s.formats, format)
	return nil
}

func (s *fakeSubmitter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *fakeSubmitter) fireCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fired)
}

func pcm(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	device := &fakeDevice{}
	submitter := &fakeSubmitter{}
	pipeline := NewPipeline(Config{Device: device, Submitter: submitter})

	if err := pipeline.Stop(); err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if pipeline.State() != StateIdle {
		t.Fatalf("expected idle, got %s", pipeline.State())
	}
	if submitter.fireCount() != 0 {
		t.Fatal("stop while idle must not submit")
	}
}

func TestRecordingIsSubmittedAsWAV(t *testing.T) {
	device := &fakeDevice{}
	submitter := &fakeSubmitter{}
	var states []State
	pipeline := NewPipeline(Config{
		Device:     device,
		Submitter:  submitter,
		SampleRate: 16000,
		Channels:   1,
		OnState:    func(s State) { states = append(states, s) },
	})

	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	device.emit(pcm(1, 2))
	device.emit(pcm(3))

	if pipeline.Chunks() != 2 {
		t.Fatalf("expected 2 chunks, got %d", pipeline.Chunks())
	}

	if err := pipeline.Stop(); err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if pipeline.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %s", pipeline.State())
	}
	if _, released := device.counts(); released != 1 {
		t.Fatalf("expected device released once, got %d", released)
	}
	if submitter.fireCount() != 1 || submitter.formats[0] != "wav" {
		t.Fatalf("expected one wav submission, got %d", submitter.fireCount())
	}

	payload := submitter.fired[0]
	if !bytes.HasPrefix(payload, []byte("RIFF")) || len(payload) != 44+6 {
		t.Fatalf("unexpected wav payload (%d bytes)", len(payload))
	}
	if !bytes.Equal(payload[44:], pcm(1, 2, 3)) {
		t.Fatalf("chunks not appended in arrival order: %v", payload[44:])
	}
	if len(states) != 2 || states[0] != StateRecording || states[1] != StateIdle {
		t.Fatalf("unexpected state transitions: %v", states)
	}
}

func TestStartWhileRecordingFails(t *testing.T) {
	device := &fakeDevice{}
	pipeline := NewPipeline(Config{Device: device, Submitter: &fakeSubmitter{}})
	defer pipeline.Close()

	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := pipeline.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}
	if opened, _ := device.counts(); opened != 1 {
		t.Fatalf("device must be acquired once, got %d", opened)
	}
}

func TestStartWhileBusyFails(t *testing.T) {
	device := &fakeDevice{}
	pipeline := NewPipeline(Config{Device: device, Submitter: &fakeSubmitter{busy: true}})

	if err := pipeline.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if opened, _ := device.counts(); opened != 0 {
		t.Fatal("device must not be acquired while busy")
	}
}

func TestDeviceErrorLeavesIdle(t *testing.T) {
	device := &fakeDevice{openErr: errors.New("permission denied")}
	pipeline := NewPipeline(Config{Device: device, Submitter: &fakeSubmitter{}})

	err := pipeline.Start(context.Background())
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if pipeline.State() != StateIdle {
		t.Fatalf("expected idle, got %s", pipeline.State())
	}

	// a later start can still succeed
	device.openErr = nil
	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start after failure err: %v", err)
	}
	pipeline.Close()
}

func TestCancelledAcquisitionLeavesIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := NewPipeline(Config{Device: NewPushDevice()})
	if err := pipeline.Start(ctx); !errors.Is(err, ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if pipeline.State() != StateIdle {
		t.Fatalf("expected idle, got %s", pipeline.State())
	}
}

func TestCloseReleasesDeviceWithoutSubmitting(t *testing.T) {
	device := &fakeDevice{}
	submitter := &fakeSubmitter{}
	pipeline := NewPipeline(Config{Device: device, Submitter: submitter})

	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	device.emit(pcm(100, -100))
	pipeline.Close()

	if _, released := device.counts(); released != 1 {
		t.Fatalf("expected device released on teardown, got %d", released)
	}
	if submitter.fireCount() != 0 {
		t.Fatal("teardown must not submit")
	}
	if err := pipeline.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after teardown, got %v", err)
	}
}

func TestEmptyRecordingIsNotSubmitted(t *testing.T) {
	device := &fakeDevice{}
	submitter := &fakeSubmitter{}
	pipeline := NewPipeline(Config{Device: device, Submitter: submitter})

	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := pipeline.Stop(); err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if submitter.fireCount() != 0 {
		t.Fatal("empty recording must not be submitted")
	}
}

func TestLevelMeterPublishes(t *testing.T) {
	device := &fakeDevice{}
	levels := make(chan float64, 16)
	pipeline := NewPipeline(Config{
		Device:       device,
		LevelRefresh: 2 * time.Millisecond,
		OnLevel: func(level float64) {
			select {
			case levels <- level:
			default:
			}
		},
	})
	defer pipeline.Close()

	if err := pipeline.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	device.emit(pcm(16384, -16384))

	deadline := time.After(time.Second)
	for {
		select {
		case level := <-levels:
			if level > 0.49 && level < 0.51 {
				return
			}
		case <-deadline:
			t.Fatal("meter did not publish the chunk level")
		}
	}
}

func TestLevelIsNormalized(t *testing.T) {
	if got := Level(nil); got != 0 {
		t.Fatalf("expected 0 for empty chunk, got %f", got)
	}
	if got := Level(pcm(-32768, -32768)); got != 1 {
		t.Fatalf("expected full scale 1, got %f", got)
	}
	if got := Level(pcm(0, 0, 0)); got != 0 {
		t.Fatalf("expected silence 0, got %f", got)
	}
}

func TestPushDeviceLifecycle(t *testing.T) {
	device := NewPushDevice()
	if device.Push([]byte{1, 2}) {
		t.Fatal("push to closed device should report false")
	}

	var got [][]byte
	stream, err := device.Open(context.Background(), func(chunk []byte) { got = append(got, chunk) })
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if _, err := device.Open(context.Background(), func([]byte) {}); !errors.Is(err, ErrDeviceInUse) {
		t.Fatalf("expected ErrDeviceInUse, got %v", err)
	}
	if !device.Push([]byte{1, 2}) || len(got) != 1 {
		t.Fatal("expected chunk delivered")
	}

	_ = stream.Close()
	_ = stream.Close()
	if device.IsOpen() {
		t.Fatal("expected device released")
	}
}
