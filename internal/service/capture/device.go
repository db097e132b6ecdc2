package capture

import (
	"context"
	"errors"
	"sync"
)

// ErrDeviceInUse is returned when a device is opened twice.
var ErrDeviceInUse = errors.New("capture: device already open")

// Device is an audio input. Open starts delivering 16-bit PCM chunks to onData until
// the returned Stream is closed. Implementations must honour ctx while acquiring.
type Device interface {
	Open(ctx context.Context, onData func(chunk []byte)) (Stream, error)
}

// Stream is an acquired device. Close releases it.
type Stream interface {
	Close() error
}

// PushDevice is fed by a remote client instead of local hardware.
type PushDevice struct {
	mu     sync.Mutex
	onData func([]byte)
}

func NewPushDevice() *PushDevice {
	return &PushDevice{}
}

func (d *PushDevice) Open(ctx context.Context, onData func([]byte)) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.onData != nil {
		return nil, ErrDeviceInUse
	}
	d.onData = onData
	return &pushStream{device: d}, nil
}

// Push delivers one chunk. It reports false when the device is not open.
func (d *PushDevice) Push(chunk []byte) bool {
	d.mu.Lock()
	onData := d.onData
	d.mu.Unlock()

	if onData == nil {
		return false
	}
	onData(chunk)
	return true
}

// IsOpen reports whether a stream currently holds the device.
func (d *PushDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onData != nil
}

type pushStream struct {
	once   sync.Once
	device *PushDevice
}

func (s *pushStream) Close() error {
	s.once.Do(func() {
		s.device.mu.Lock()
		s.device.onData = nil
		s.device.mu.Unlock()
	})
	return nil
}
