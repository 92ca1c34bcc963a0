// Package sink plays raw audio straight to hardware output devices,
// bypassing the waveform renderer. It supports start and stop only.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/playback"
)

// Device is an output device as reported to callers.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// DeviceID derives the stable id of a device from its name.
func DeviceID(name string) string {
	return "device_" + strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// Backend enumerates output devices and opens them for playback.
type Backend interface {
	Devices() ([]Device, error)
	Open(d Device) (audio.Context, error)
}

// Sink plays one buffer to a set of devices at a time.
type Sink struct {
	backend Backend
	logger  *log.Logger

	mu      sync.Mutex
	players []*audio.Player
	stopped atomic.Bool
}

// New creates a sink on backend.
func New(backend Backend, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Default().WithPrefix("sink")
	}
	s := &Sink{backend: backend, logger: logger}
	s.stopped.Store(true)
	return s
}

// IsSystemAudioSupported reports whether at least one output device exists.
func (s *Sink) IsSystemAudioSupported() bool {
	if s.backend == nil {
		return false
	}
	devices, err := s.backend.Devices()
	if err != nil {
		s.logger.Debug("Device enumeration failed", "err", err)
		return false
	}
	return len(devices) > 0
}

// ListOutputDevices returns every output device with its stable id.
func (s *Sink) ListOutputDevices() ([]Device, error) {
	if s.backend == nil {
		return nil, playback.ErrSinkUnsupported
	}
	devices, err := s.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate output devices: %w", err)
	}
	return devices, nil
}

// PlayToDevices decodes a WAV buffer and starts it on every device whose id
// is listed. Any previous playback is stopped first. It returns once all
// streams are running.
func (s *Sink) PlayToDevices(ctx context.Context, data []byte, deviceIDs []string) error {
	return s.PlayToDevicesFrom(ctx, data, deviceIDs, 0)
}

// PlayToDevicesFrom is PlayToDevices starting offset into the audio.
func (s *Sink) PlayToDevicesFrom(ctx context.Context, data []byte, deviceIDs []string, offset time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend == nil {
		return playback.ErrSinkUnsupported
	}

	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode audio: %w", err)
	}
	s.logger.Debug("Audio decoded",
		"samples", len(pcm.Samples),
		"sample_rate", pcm.SampleRate,
		"channels", pcm.Channels)

	targets, err := s.match(deviceIDs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.stopped.Store(false)

	for _, d := range targets {
		p, err := s.start(d, pcm, offset)
		if err != nil {
			s.stopLocked()
			return fmt.Errorf("failed to play to device %s: %w", d.Name, err)
		}
		s.players = append(s.players, p)
		s.logger.Debug("Started playback", "device", d.Name, "id", d.ID, "offset", offset)
	}
	return nil
}

// StopPlayback silences every active stream. Safe to call repeatedly.
func (s *Sink) StopPlayback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.activeLocked(); n > 0 {
		s.logger.Debug("Stopping playback", "streams", n)
	}
	s.stopLocked()
	return nil
}

// Close stops playback and releases the backend.
func (s *Sink) Close() error {
	_ = s.StopPlayback()
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Sink) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// activeLocked counts the streams still producing sound.
func (s *Sink) activeLocked() int {
	if s.stopped.Load() {
		return 0
	}
	n := 0
	for _, p := range s.players {
		if p.State() == audio.StatePlaying && !p.Finished() {
			n++
		}
	}
	return n
}

func (s *Sink) match(ids []string) ([]Device, error) {
	devices, err := s.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var matched []Device
	for _, d := range devices {
		if _, ok := want[d.ID]; ok {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		s.logger.Debug("No requested device present", "requested", ids)
		return nil, playback.ErrNoMatchingDevices
	}
	return matched, nil
}

func (s *Sink) start(d Device, pcm *audio.PCM, offset time.Duration) (*audio.Player, error) {
	out, err := s.backend.Open(d)
	if err != nil {
		return nil, err
	}

	p := audio.NewPlayer(out)
	buf := pcm.Convert(out.SampleRate(), out.Channels()).Int16LE()
	if err := p.Load(buf); err != nil {
		_ = p.Close()
		return nil, err
	}
	if offset > 0 {
		if err := p.Seek(min(offset, p.Duration())); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	if err := p.Play(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (s *Sink) stopLocked() {
	s.stopped.Store(true)
	for _, p := range s.players {
		_ = p.Close()
	}
	s.players = nil
}

// OtoBackend exposes the system default output through the shared oto
// context. oto cannot address other devices, so it reports exactly one.
// It is the fallback when MalgoBackend cannot start.
type OtoBackend struct {
	Name    string
	Options audio.ContextOptions
}

// Devices returns the default output device.
func (b *OtoBackend) Devices() ([]Device, error) {
	name := b.Name
	if name == "" {
		name = "System Default"
	}
	return []Device{{ID: DeviceID(name), Name: name, IsDefault: true}}, nil
}

// Open returns the shared output context.
func (b *OtoBackend) Open(Device) (audio.Context, error) {
	ctx, err := audio.Shared(b.Options)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

// Unsupported is the sink of runtimes without native audio.
type Unsupported struct{}

// IsSystemAudioSupported always reports false.
func (Unsupported) IsSystemAudioSupported() bool { return false }

// PlayToDevices always fails.
func (Unsupported) PlayToDevices(context.Context, []byte, []string) error {
	return playback.ErrSinkUnsupported
}

// StopPlayback does nothing.
func (Unsupported) StopPlayback() error { return nil }

var (
	_ playback.SeekableSink = (*Sink)(nil)
	_ playback.NativeSink   = Unsupported{}
	_ Backend               = (*OtoBackend)(nil)
	_ Backend               = (*MalgoBackend)(nil)
)

// IsUnsupported reports whether err means no native output exists.
func IsUnsupported(err error) bool {
	return errors.Is(err, playback.ErrSinkUnsupported)
}
