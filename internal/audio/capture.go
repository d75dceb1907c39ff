package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// CaptureConfig controls how the capture device is opened.
type CaptureConfig struct {
	// SampleRate of 0 opens the device at its native rate.
	SampleRate int
	// BlockSize is the preferred device period in frames.
	BlockSize int
}

// CaptureSource records signed 16-bit mono PCM from the default input
// device via miniaudio. One CaptureSource serves one recording session:
// construct, Open, then Close.
type CaptureSource struct {
	ctx *malgo.AllocatedContext
	cfg CaptureConfig

	mu     sync.Mutex
	device *malgo.Device
	rate   int
	closed bool
}

// NewCaptureSource initializes the audio backend context. The device itself
// is not opened until Open.
func NewCaptureSource(cfg CaptureConfig) (*CaptureSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &CaptureSource{ctx: ctx, cfg: cfg}, nil
}

// Open starts exclusive capture from the default input device. onBlock is
// invoked once per captured period on the audio thread.
func (s *CaptureSource) Open(onBlock func(Block)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("capture source already closed")
	}
	if s.device != nil {
		return fmt.Errorf("capture device already open")
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatS16
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(s.cfg.SampleRate)
	deviceCfg.PeriodSizeInFrames = uint32(s.cfg.BlockSize)
	deviceCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			s.mu.Lock()
			rate := s.rate
			open := s.device != nil && !s.closed
			s.mu.Unlock()
			if !open {
				return
			}
			onBlock(Block{
				Samples:    bytesToInt16(pInput, frameCount),
				SampleRate: rate,
				Timestamp:  time.Now(),
			})
		},
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	// The device reports the rate it actually opened at, which may differ
	// from the requested one.
	s.rate = int(device.SampleRate())

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.device = device
	return nil
}

// SampleRate reports the rate the device opened at. Zero until Open.
func (s *CaptureSource) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Close stops capture and releases the device and backend context. It is
// idempotent and blocks until in-flight callbacks have drained.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	device := s.device
	s.device = nil
	s.mu.Unlock()

	// Uninit is synchronous: it stops the device thread before returning,
	// so no callback fires after Close returns.
	if device != nil {
		device.Uninit()
	}
	if s.ctx != nil {
		if err := s.ctx.Uninit(); err != nil {
			s.ctx.Free()
			return fmt.Errorf("uninit audio context: %w", err)
		}
		s.ctx.Free()
		s.ctx = nil
	}
	return nil
}

// DefaultInputDevice reports the name of the default capture device, or
// false when no input device is available.
func DefaultInputDevice() (string, bool) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return "", false
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil || len(infos) == 0 {
		return "", false
	}
	for _, info := range infos {
		if info.IsDefault != 0 {
			return info.Name(), true
		}
	}
	return infos[0].Name(), true
}

func bytesToInt16(data []byte, frameCount uint32) []int16 {
	n := int(frameCount)
	if max := len(data) / 2; n > max {
		n = max
	}
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
