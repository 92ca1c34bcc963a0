package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRenderer records calls and emits events through the registered handler.
type fakeRenderer struct {
	mu       sync.Mutex
	handler  func(RendererEvent)
	url      string
	loads    []string
	playing  bool
	muted    bool
	volume   float64
	position time.Duration
	duration time.Duration
	plays    int
	playErr  error
	loadErr  error
	noReady  bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{volume: 1, duration: 3 * time.Second}
}

func (r *fakeRenderer) Load(_ context.Context, url string) {
	r.mu.Lock()
	r.url = url
	r.loads = append(r.loads, url)
	r.position = 0
	loadErr, noReady, dur := r.loadErr, r.noReady, r.duration
	r.mu.Unlock()

	switch {
	case noReady:
	case loadErr != nil:
		r.emit(RendererEvent{Type: EventError, Source: url, Err: loadErr})
	default:
		r.emit(RendererEvent{Type: EventReady, Source: url, Duration: dur})
	}
}

func (r *fakeRenderer) Empty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url = ""
	r.playing = false
	r.position = 0
}

func (r *fakeRenderer) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playErr != nil {
		return r.playErr
	}
	r.playing = true
	r.plays++
	return nil
}

func (r *fakeRenderer) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
}

func (r *fakeRenderer) Seek(pos time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.url == "" {
		return ErrNotLoaded
	}
	r.position = pos
	return nil
}

func (r *fakeRenderer) SetVolume(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = v
}

func (r *fakeRenderer) SetMuted(m bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = m
}

func (r *fakeRenderer) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

func (r *fakeRenderer) OnEvent(fn func(RendererEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = fn
}

func (r *fakeRenderer) emit(ev RendererEvent) {
	r.mu.Lock()
	fn := r.handler
	r.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// finish simulates reaching the end of the media.
func (r *fakeRenderer) finish() {
	r.mu.Lock()
	r.playing = false
	r.position = r.duration
	url, dur := r.url, r.duration
	r.mu.Unlock()
	r.emit(RendererEvent{Type: EventFinish, Source: url, Position: dur})
}

// audible reports whether the renderer is producing sound.
func (r *fakeRenderer) audible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing && !r.muted && r.volume > 0
}

func (r *fakeRenderer) state() (playing, muted bool, volume float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing, r.muted, r.volume
}

func (r *fakeRenderer) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loads)
}

func (r *fakeRenderer) setPlayErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playErr = err
}

// fakeSink stands in for the native multi-device sink.
type fakeSink struct {
	mu        sync.Mutex
	supported bool
	playing   bool
	devices   []string
	starts    int
	stops     int
	offsets   []time.Duration
	playErr   error
}

func (s *fakeSink) IsSystemAudioSupported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported
}

func (s *fakeSink) PlayToDevices(ctx context.Context, audio []byte, devices []string) error {
	return s.PlayToDevicesFrom(ctx, audio, devices, 0)
}

func (s *fakeSink) PlayToDevicesFrom(_ context.Context, audio []byte, devices []string, offset time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(audio) == 0 {
		return errors.New("empty audio")
	}
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	s.devices = append([]string(nil), devices...)
	s.starts++
	s.offsets = append(s.offsets, offset)
	return nil
}

func (s *fakeSink) StopPlayback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.stops++
	return nil
}

func (s *fakeSink) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *fakeSink) lastOffset() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.offsets) == 0 {
		return -1
	}
	return s.offsets[len(s.offsets)-1]
}

// startOnlySink hides PlayToDevicesFrom, like a sink that can only start
// from the beginning.
type startOnlySink struct{ s *fakeSink }

func (o startOnlySink) IsSystemAudioSupported() bool { return o.s.IsSystemAudioSupported() }
func (o startOnlySink) StopPlayback() error          { return o.s.StopPlayback() }
func (o startOnlySink) PlayToDevices(ctx context.Context, audio []byte, devices []string) error {
	return o.s.PlayToDevices(ctx, audio, devices)
}

func (s *fakeSink) setPlayErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playErr = err
}

// fakeResolver serves fixed channel assignments. When gate is set the
// profile lookup blocks until it is closed; gates does the same for one
// profile only.
type fakeResolver struct {
	mu       sync.Mutex
	profiles map[string][]string
	channels []Channel
	err      error
	gate     chan struct{}
	gates    map[string]chan struct{}
	calls    int
}

func (f *fakeResolver) GetProfileChannels(ctx context.Context, profileID string) ([]string, error) {
	f.mu.Lock()
	f.calls++
	gate, err := f.gate, f.err
	if g, ok := f.gates[profileID]; ok {
		gate = g
	}
	ids := append([]string(nil), f.profiles[profileID]...)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *fakeResolver) ListChannels(context.Context) ([]Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]Channel(nil), f.channels...), nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) FetchAudio(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

// harness wires a coordinator to fakes with one profile routed to a
// non-default channel ("speakers") and one routed to the default channel.
type harness struct {
	c        *Coordinator
	renderer *fakeRenderer
	sink     *fakeSink
	resolver *fakeResolver
	fetcher  *fakeFetcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		renderer: newFakeRenderer(),
		sink:     &fakeSink{supported: true},
		resolver: &fakeResolver{
			profiles: map[string][]string{
				"routed":  {"speakers"},
				"default": {"main"},
			},
			channels: []Channel{
				{ID: "main", Name: "Main", DeviceIDs: []string{"device_built-in"}, IsDefault: true},
				{ID: "speakers", Name: "Speakers", DeviceIDs: []string{"device_usb_speakers"}},
			},
		},
		fetcher: &fakeFetcher{data: []byte("RIFF")},
	}

	c, err := NewCoordinator(CoordinatorOptions{
		Renderer:      h.renderer,
		Sink:          h.sink,
		Resolver:      h.resolver,
		Fetcher:       h.fetcher,
		NativeRuntime: true,
		AutoPlay:      true,
	})
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	h.c = c
	return h
}

// settle processes queued renderer events and waits for routing attempts
// until nothing is pending.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		h.c.inflight.Wait()
		if h.c.events.len() == 0 {
			return
		}
		h.c.processEvents()
	}
	t.Fatal("coordinator did not settle")
}
