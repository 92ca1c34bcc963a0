package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/playback"
)

type fakeBackend struct {
	mu       sync.Mutex
	devices  []Device
	outputs  map[string]*audio.MockContext
	openErr  map[string]error
	enumErr  error
	openings []string
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{
		outputs: make(map[string]*audio.MockContext),
		openErr: make(map[string]error),
	}
	for i, name := range names {
		id := DeviceID(name)
		b.devices = append(b.devices, Device{ID: id, Name: name, IsDefault: i == 0})
		b.outputs[id] = audio.NewMockContext(48000, 2)
	}
	return b
}

func (b *fakeBackend) Devices() ([]Device, error) {
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	return b.devices, nil
}

func (b *fakeBackend) Open(d Device) (audio.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openings = append(b.openings, d.ID)
	if err := b.openErr[d.ID]; err != nil {
		return nil, err
	}
	return b.outputs[d.ID], nil
}

func (b *fakeBackend) audible(id string) bool {
	s := b.outputs[id].Last()
	return s != nil && s.Audible()
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	pcm := &audio.PCM{
		Samples:    make([]float32, 2400),
		SampleRate: 24000,
		Channels:   1,
	}
	for i := range pcm.Samples {
		pcm.Samples[i] = 0.25
	}
	data, err := audio.EncodeWAV(pcm)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	return data
}

func TestDeviceID(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"Speakers", "device_speakers"},
		{"USB Audio Device", "device_usb_audio_device"},
		{"System Default", "device_system_default"},
		{"", "device_"},
	}
	for _, tt := range tests {
		if got := DeviceID(tt.name); got != tt.expected {
			t.Errorf("DeviceID(%q) = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestListOutputDevices(t *testing.T) {
	s := New(newFakeBackend("Built-in Output", "USB Speakers"), nil)

	devices, err := s.ListOutputDevices()
	if err != nil {
		t.Fatalf("ListOutputDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[1].ID != "device_usb_speakers" || devices[1].IsDefault {
		t.Errorf("devices[1] = %+v", devices[1])
	}
	if !devices[0].IsDefault {
		t.Error("first device should be the default")
	}
}

func TestIsSystemAudioSupported(t *testing.T) {
	enumFails := newFakeBackend("Speakers")
	enumFails.enumErr = errors.New("no audio server")

	tests := []struct {
		name     string
		backend  Backend
		expected bool
	}{
		{"with devices", newFakeBackend("Speakers"), true},
		{"no devices", newFakeBackend(), false},
		{"enumeration fails", enumFails, false},
		{"no backend", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.backend, nil).IsSystemAudioSupported(); got != tt.expected {
				t.Errorf("IsSystemAudioSupported() = %v, want %v", got, tt.expected)
			}
		})
	}

	if (Unsupported{}).IsSystemAudioSupported() {
		t.Error("Unsupported should never report support")
	}
}

func TestPlayToDevices(t *testing.T) {
	b := newFakeBackend("Built-in Output", "USB Speakers", "HDMI")
	s := New(b, nil)

	err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_usb_speakers", "device_hdmi", "device_gone"})
	if err != nil {
		t.Fatalf("PlayToDevices() error = %v", err)
	}

	if b.audible("device_built-in_output") {
		t.Error("unrequested device should be silent")
	}
	for _, id := range []string{"device_usb_speakers", "device_hdmi"} {
		if !b.audible(id) {
			t.Errorf("%s should be playing", id)
		}
	}
	if s.active() != 2 {
		t.Errorf("active() = %d, want 2", s.active())
	}

	// 100ms at 24 kHz mono becomes 100ms at 48 kHz stereo 16-bit.
	out := b.outputs["device_hdmi"]
	out.Advance(1 << 20)
	if got, want := out.Last().Written(), 4800*2*2; got != want {
		t.Errorf("converted bytes = %d, want %d", got, want)
	}
}

func TestPlayToDevicesFrom(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   int
	}{
		{"start", 0, 4800 * 2 * 2},
		{"halfway", 50 * time.Millisecond, 2400 * 2 * 2},
		{"past the end", time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend("Speakers")
			s := New(b, nil)
			if err := s.PlayToDevicesFrom(context.Background(), testWAV(t), []string{"device_speakers"}, tt.offset); err != nil {
				t.Fatalf("PlayToDevicesFrom() error = %v", err)
			}
			out := b.outputs["device_speakers"]
			out.Advance(1 << 20)
			if got := out.Last().Written(); got != tt.want {
				t.Errorf("bytes played from %v = %d, want %d", tt.offset, got, tt.want)
			}
		})
	}
}

type closingBackend struct {
	*fakeBackend
	closed int
}

func (b *closingBackend) Close() error {
	b.closed++
	return nil
}

func TestSinkClose(t *testing.T) {
	b := &closingBackend{fakeBackend: newFakeBackend("Speakers")}
	s := New(b, nil)
	if err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_speakers"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if b.closed != 1 {
		t.Errorf("backend closed %d times, want 1", b.closed)
	}
	if b.audible("device_speakers") {
		t.Error("Close() should stop playback")
	}

	if err := New(newFakeBackend("Speakers"), nil).Close(); err != nil {
		t.Errorf("Close() without a closable backend error = %v", err)
	}
}

func TestPlayToDevicesNoMatch(t *testing.T) {
	b := newFakeBackend("Speakers")
	s := New(b, nil)

	err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_headphones"})
	if !errors.Is(err, playback.ErrNoMatchingDevices) {
		t.Fatalf("error = %v, want ErrNoMatchingDevices", err)
	}
	if len(b.openings) != 0 {
		t.Errorf("opened %v, want nothing", b.openings)
	}

	err = s.PlayToDevices(context.Background(), testWAV(t), nil)
	if !errors.Is(err, playback.ErrNoMatchingDevices) {
		t.Errorf("empty id list error = %v, want ErrNoMatchingDevices", err)
	}
}

func TestPlayToDevicesInvalidAudio(t *testing.T) {
	s := New(newFakeBackend("Speakers"), nil)

	err := s.PlayToDevices(context.Background(), []byte("not audio"), []string{"device_speakers"})
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("error = %v, want ErrInvalidWAV", err)
	}
}

func TestPlayToDevicesCanceled(t *testing.T) {
	s := New(newFakeBackend("Speakers"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.PlayToDevices(ctx, testWAV(t), []string{"device_speakers"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestPlayToDevicesStopsPrevious(t *testing.T) {
	b := newFakeBackend("Speakers", "Headphones")
	s := New(b, nil)
	ctx := context.Background()

	if err := s.PlayToDevices(ctx, testWAV(t), []string{"device_speakers"}); err != nil {
		t.Fatal(err)
	}
	first := b.outputs["device_speakers"].Last()

	if err := s.PlayToDevices(ctx, testWAV(t), []string{"device_headphones"}); err != nil {
		t.Fatal(err)
	}
	if !first.Closed() || first.Audible() {
		t.Error("previous stream should be stopped before the new one starts")
	}
	if !b.audible("device_headphones") {
		t.Error("new device should be playing")
	}
	if s.active() != 1 {
		t.Errorf("active() = %d, want 1", s.active())
	}
}

func TestPlayToDevicesOpenFailureStopsAll(t *testing.T) {
	b := newFakeBackend("Speakers", "Headphones")
	b.openErr["device_headphones"] = errors.New("device busy")
	s := New(b, nil)

	err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_speakers", "device_headphones"})
	if err == nil {
		t.Fatal("expected error when a device cannot be opened")
	}
	if b.audible("device_speakers") {
		t.Error("a partial start must not leave devices playing")
	}
	if s.active() != 0 {
		t.Errorf("active() = %d, want 0", s.active())
	}
}

func TestStopPlaybackIdempotent(t *testing.T) {
	b := newFakeBackend("Speakers")
	s := New(b, nil)

	if err := s.StopPlayback(); err != nil {
		t.Fatalf("StopPlayback() on idle sink error = %v", err)
	}

	if err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_speakers"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.StopPlayback(); err != nil {
			t.Fatalf("StopPlayback() #%d error = %v", i, err)
		}
	}
	if b.audible("device_speakers") {
		t.Error("device still playing after StopPlayback")
	}
	if s.active() != 0 {
		t.Errorf("active() = %d, want 0", s.active())
	}
}

func TestActiveAfterNaturalEnd(t *testing.T) {
	b := newFakeBackend("Speakers")
	s := New(b, nil)
	if err := s.PlayToDevices(context.Background(), testWAV(t), []string{"device_speakers"}); err != nil {
		t.Fatal(err)
	}

	b.outputs["device_speakers"].Advance(1 << 20)
	if s.active() != 0 {
		t.Errorf("active() = %d after all data was played, want 0", s.active())
	}
}

func TestUnsupportedSink(t *testing.T) {
	var u Unsupported
	err := u.PlayToDevices(context.Background(), testWAV(t), []string{"device_speakers"})
	if !IsUnsupported(err) {
		t.Errorf("PlayToDevices() error = %v, want ErrSinkUnsupported", err)
	}
	if err := u.StopPlayback(); err != nil {
		t.Errorf("StopPlayback() error = %v", err)
	}

	if _, err := New(nil, nil).ListOutputDevices(); !IsUnsupported(err) {
		t.Errorf("ListOutputDevices() without backend error = %v", err)
	}
}

func TestOtoBackendDevices(t *testing.T) {
	b := &OtoBackend{}
	devices, err := b.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].ID != "device_system_default" || !devices[0].IsDefault {
		t.Errorf("Devices() = %+v", devices)
	}

	named := &OtoBackend{Name: "Studio Monitors"}
	devices, _ = named.Devices()
	if devices[0].ID != "device_studio_monitors" {
		t.Errorf("ID = %q", devices[0].ID)
	}
}
