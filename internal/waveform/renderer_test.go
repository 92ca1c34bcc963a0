package waveform

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/playback"
)

type mapFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	gate  chan struct{}
}

func (f *mapFetcher) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

// tone returns a WAV whose first half is loud and second half quiet.
func tone(t *testing.T, d time.Duration) []byte {
	t.Helper()
	rate := 8000
	frames := int(int64(rate) * int64(d) / int64(time.Second))
	p := &audio.PCM{Samples: make([]float32, frames), SampleRate: rate, Channels: 1}
	for i := range p.Samples {
		amp := 0.8
		if i >= frames/2 {
			amp = 0.2
		}
		p.Samples[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	data, err := audio.EncodeWAV(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

type harness struct {
	r      *Renderer
	out    *audio.MockContext
	fetch  *mapFetcher
	events chan playback.RendererEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		out: audio.NewMockContext(8000, 2),
		fetch: &mapFetcher{files: map[string][]byte{
			"a.wav": tone(t, 500*time.Millisecond),
			"b.wav": tone(t, 250*time.Millisecond),
			"bad":   []byte("not a wav file"),
		}},
		events: make(chan playback.RendererEvent, 256),
	}
	r, err := New(Options{Output: h.out, Fetcher: h.fetch, Bars: 16, Tick: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.OnEvent(func(ev playback.RendererEvent) {
		select {
		case h.events <- ev:
		default:
		}
	})
	t.Cleanup(func() { _ = r.Close() })
	h.r = r
	return h
}

func (h *harness) await(t *testing.T, typ playback.RendererEventType) playback.RendererEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v event", typ)
		}
	}
}

func TestNewRequiresOutput(t *testing.T) {
	_, err := New(Options{Fetcher: &mapFetcher{}})
	var pe *playback.PlaybackError
	if !errors.As(err, &pe) || pe.Component != "renderer" {
		t.Errorf("New() without output error = %v", err)
	}
	if _, err := New(Options{Output: audio.NewMockContext(8000, 1)}); err == nil {
		t.Error("New() without fetcher should fail")
	}
}

func TestLoadReady(t *testing.T) {
	h := newHarness(t)

	if err := h.r.Play(); !errors.Is(err, playback.ErrNotLoaded) {
		t.Errorf("Play() before load error = %v, want ErrNotLoaded", err)
	}

	h.r.Load(context.Background(), "a.wav")
	ev := h.await(t, playback.EventReady)
	if ev.Source != "a.wav" || ev.Duration != 500*time.Millisecond {
		t.Errorf("ready = %+v", ev)
	}
	if h.r.Duration() != 500*time.Millisecond {
		t.Errorf("Duration() = %v", h.r.Duration())
	}

	peaks := h.r.Peaks()
	if len(peaks) != 16 {
		t.Fatalf("len(Peaks()) = %d, want 16", len(peaks))
	}
	if peaks[2] < 0.9 || peaks[12] > 0.4 {
		t.Errorf("peaks should follow the envelope: %v", peaks)
	}
}

func TestLoadError(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing", "missing.wav"},
		{"not wav", "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.r.Load(context.Background(), tt.url)
			ev := h.await(t, playback.EventError)
			if ev.Source != tt.url || ev.Err == nil {
				t.Errorf("error event = %+v", ev)
			}
			if err := h.r.Play(); !errors.Is(err, playback.ErrNotLoaded) {
				t.Errorf("Play() after failed load error = %v", err)
			}
		})
	}
}

func TestSupersededLoadDropped(t *testing.T) {
	h := newHarness(t)
	h.fetch.gate = make(chan struct{})

	h.r.Load(context.Background(), "a.wav")
	h.r.Load(context.Background(), "b.wav")
	close(h.fetch.gate)

	ev := h.await(t, playback.EventReady)
	if ev.Source != "b.wav" {
		t.Errorf("ready for %q, want b.wav", ev.Source)
	}
	select {
	case ev := <-h.events:
		t.Errorf("unexpected event after superseding load: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyCancelsLoad(t *testing.T) {
	h := newHarness(t)
	h.fetch.gate = make(chan struct{})

	h.r.Load(context.Background(), "a.wav")
	h.r.Empty()

	select {
	case ev := <-h.events:
		t.Errorf("unexpected event after Empty: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if h.r.Peaks() != nil {
		t.Error("Peaks() should be empty")
	}
}

func TestPlayProgressFinish(t *testing.T) {
	h := newHarness(t)
	h.r.Load(context.Background(), "b.wav")
	h.await(t, playback.EventReady)

	if err := h.r.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	h.await(t, playback.EventPlay)
	if !h.r.Playing() || !h.out.Last().Audible() {
		t.Error("renderer should be audible while playing")
	}

	// 62.5ms of 8 kHz stereo 16-bit.
	h.out.Advance(2000)
	for {
		ev := h.await(t, playback.EventTimeUpdate)
		if ev.Position > 0 {
			if ev.Position != 62500*time.Microsecond {
				t.Errorf("timeupdate position = %v, want 62.5ms", ev.Position)
			}
			break
		}
	}

	h.out.Advance(1 << 20)
	ev := h.await(t, playback.EventFinish)
	if ev.Position != 250*time.Millisecond || ev.Source != "b.wav" {
		t.Errorf("finish = %+v", ev)
	}
	if h.r.Playing() {
		t.Error("Playing() should be false after finish")
	}

	// Playing again at the end restarts from zero.
	if err := h.r.Play(); err != nil {
		t.Fatal(err)
	}
	if h.r.Position() != 0 {
		t.Errorf("Position() after replay = %v, want 0", h.r.Position())
	}
}

func TestPauseSeekMute(t *testing.T) {
	h := newHarness(t)
	h.r.Load(context.Background(), "a.wav")
	h.await(t, playback.EventReady)

	_ = h.r.Play()
	h.r.Pause()
	h.await(t, playback.EventPause)
	if h.r.Playing() || h.out.Last().IsPlaying() {
		t.Error("Pause() should stop the output")
	}
	h.r.Pause()

	if err := h.r.Seek(250 * time.Millisecond); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if h.r.Position() != 250*time.Millisecond {
		t.Errorf("Position() = %v", h.r.Position())
	}
	if err := h.r.Seek(time.Second); err == nil {
		t.Error("Seek() past the end should fail")
	}

	h.r.SetVolume(0.5)
	h.r.SetMuted(true)
	if !h.r.Muted() || h.out.Last().Volume() != 0 {
		t.Error("SetMuted(true) should silence the stream")
	}
	h.r.SetMuted(false)
	if h.out.Last().Volume() != 0.5 {
		t.Errorf("volume = %v, want 0.5", h.out.Last().Volume())
	}
	h.r.SetVolume(7)
	if h.out.Last().Volume() != 1 {
		t.Errorf("clamped volume = %v, want 1", h.out.Last().Volume())
	}
}

func TestCloseIdempotent(t *testing.T) {
	h := newHarness(t)
	h.r.Load(context.Background(), "a.wav")
	if err := h.r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestPeaks(t *testing.T) {
	silent := &audio.PCM{Samples: make([]float32, 100), SampleRate: 8000, Channels: 1}
	for _, p := range Peaks(silent, 10) {
		if p != 0 {
			t.Fatalf("silence should give zero peaks")
		}
	}

	short := &audio.PCM{Samples: []float32{0.5, -0.5, 0.25}, SampleRate: 8000, Channels: 1}
	got := Peaks(short, 6)
	if len(got) != 6 || got[0] != 1 {
		t.Errorf("Peaks(short) = %v", got)
	}

	if Peaks(nil, 4) != nil || Peaks(short, 0) != nil {
		t.Error("degenerate input should yield nil")
	}
}

func TestCursor(t *testing.T) {
	tests := []struct {
		p        float64
		n        int
		expected int
	}{
		{0, 10, 0},
		{0.55, 10, 5},
		{1, 10, 9},
		{-1, 10, 0},
		{0.5, 0, 0},
	}
	for _, tt := range tests {
		if got := Cursor(tt.p, tt.n); got != tt.expected {
			t.Errorf("Cursor(%v, %d) = %d, want %d", tt.p, tt.n, got, tt.expected)
		}
	}
}
