//go:build cgo && !nocgo
// +build cgo,!nocgo

package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"github.com/voxplay/voxplay/internal/audio"
)

// MalgoBackend enumerates every playback device through miniaudio and opens
// each one on its own, so one buffer can play on several outputs at once.
type MalgoBackend struct {
	ctx    *malgo.AllocatedContext
	opts   audio.ContextOptions
	logger *log.Logger

	mu  sync.Mutex
	ids map[string]malgo.DeviceID
}

// NewMalgoBackend initialises a miniaudio context. Every device is opened
// with opts.
func NewMalgoBackend(opts audio.ContextOptions, logger *log.Logger) (*MalgoBackend, error) {
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return nil, fmt.Errorf("invalid output options: %d Hz, %d channels", opts.SampleRate, opts.Channels)
	}
	if logger == nil {
		logger = log.Default().WithPrefix("sink")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &MalgoBackend{
		ctx:    ctx,
		opts:   opts,
		logger: logger,
		ids:    make(map[string]malgo.DeviceID),
	}, nil
}

// Devices lists the playback devices. When two devices share a name the
// first one wins.
func (b *MalgoBackend) Devices() ([]Device, error) {
	infos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	devices := make([]Device, 0, len(infos))
	seen := make(map[string]bool, len(infos))
	for i := range infos {
		info := &infos[i]
		name := info.Name()
		d := Device{ID: DeviceID(name), Name: name, IsDefault: info.IsDefault != 0}
		if seen[d.ID] {
			b.logger.Debug("Skipping duplicate device name", "name", name)
			continue
		}
		seen[d.ID] = true
		b.ids[d.ID] = info.ID
		devices = append(devices, d)
	}
	return devices, nil
}

// Open initialises and starts device d. The output serves a single stream
// and releases the device when that stream is closed.
func (b *MalgoBackend) Open(d Device) (audio.Context, error) {
	b.mu.Lock()
	id, ok := b.ids[d.ID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %s", d.ID)
	}

	out := &malgoOutput{id: id, rate: b.opts.SampleRate, channels: b.opts.Channels}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(out.channels)
	cfg.Playback.DeviceID = out.id.Pointer()
	cfg.SampleRate = uint32(out.rate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{Data: out.onData})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device %s: %w", d.Name, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start device %s: %w", d.Name, err)
	}
	out.device = device

	b.logger.Debug("Opened device", "name", d.Name, "sample_rate", out.rate, "channels", out.channels)
	return out, nil
}

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to release malgo context: %w", err)
	}
	b.ctx.Free()
	return nil
}

// malgoOutput is one opened device.
type malgoOutput struct {
	id       malgo.DeviceID
	rate     int
	channels int

	mu     sync.Mutex
	device *malgo.Device
	stream *pcmStream
}

func (o *malgoOutput) NewStream(r io.Reader) audio.Stream {
	s := newPCMStream(r, o.release)
	o.mu.Lock()
	o.stream = s
	o.mu.Unlock()
	return s
}

func (o *malgoOutput) SampleRate() int { return o.rate }

func (o *malgoOutput) Channels() int { return o.channels }

// onData runs on the device thread and pads underruns with silence.
func (o *malgoOutput) onData(out, _ []byte, _ uint32) {
	o.mu.Lock()
	s := o.stream
	o.mu.Unlock()

	n := 0
	if s != nil {
		n = s.fill(out)
	}
	clear(out[n:])
}

func (o *malgoOutput) release() {
	o.mu.Lock()
	d := o.device
	o.device = nil
	o.stream = nil
	o.mu.Unlock()

	if d != nil {
		_ = d.Stop()
		d.Uninit()
	}
}
