// Package mic captures audio from the local default input device.
package mic

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/zhouzirui/date-rehearsal/backend/internal/service/capture"
)

// Device opens the default capture device as 16-bit PCM.
type Device struct {
	SampleRate int
	Channels   int
}

func New(sampleRate, channels int) *Device {
	return &Device{SampleRate: sampleRate, Channels: channels}
}

// Open initializes the audio backend and starts the device. Every failure path
// releases what was already acquired.
func (d *Device) Open(ctx context.Context, onData func([]byte)) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[mic] %s", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(d.Channels)
	deviceConfig.SampleRate = uint32(d.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
	})
	if err != nil {
		releaseContext(malgoCtx)
		return nil, fmt.Errorf("init microphone: %w", err)
	}

	if err := ctx.Err(); err != nil {
		device.Uninit()
		releaseContext(malgoCtx)
		return nil, err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(malgoCtx)
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	log.Printf("[mic] recording %d Hz, %d channel(s)", d.SampleRate, d.Channels)
	return &stream{ctx: malgoCtx, device: device}, nil
}

type stream struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.device.Stop()
		s.device.Uninit()
		releaseContext(s.ctx)
	})
	return err
}

func releaseContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		log.Printf("[mic] uninit context: %v", err)
	}
	ctx.Free()
}
