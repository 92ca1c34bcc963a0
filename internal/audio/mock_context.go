package audio

import (
	"io"
	"sync"
)

// MockContext is an output context that produces no sound. Streams only
// consume data when Advance is called, which keeps tests deterministic.
type MockContext struct {
	Rate  int
	Chans int

	mu      sync.Mutex
	streams []*MockStream
}

// NewMockContext creates a mock output with the given format.
func NewMockContext(rate, channels int) *MockContext {
	return &MockContext{Rate: rate, Chans: channels}
}

// NewStream creates a paused mock stream reading from r.
func (c *MockContext) NewStream(r io.Reader) Stream {
	s := &MockStream{r: r, volume: 1}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s
}

// SampleRate returns the mock sample rate.
func (c *MockContext) SampleRate() int { return c.Rate }

// Channels returns the mock channel count.
func (c *MockContext) Channels() int { return c.Chans }

// Streams returns every stream created so far.
func (c *MockContext) Streams() []*MockStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockStream(nil), c.streams...)
}

// Last returns the most recently created stream, or nil.
func (c *MockContext) Last() *MockStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

// Advance consumes n bytes on every playing stream.
func (c *MockContext) Advance(n int) {
	for _, s := range c.Streams() {
		s.Advance(n)
	}
}

// MockStream records calls made by a Player.
type MockStream struct {
	mu      sync.Mutex
	r       io.Reader
	playing bool
	closed  bool
	volume  float64
	written int
}

func (s *MockStream) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.playing = true
	}
}

func (s *MockStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *MockStream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *MockStream) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// Volume returns the volume last applied.
func (s *MockStream) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *MockStream) BufferedSize() int { return 0 }

func (s *MockStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeker, ok := s.r.(io.Seeker)
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	return seeker.Seek(offset, whence)
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.playing = false
	return nil
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Audible reports whether the stream is playing at a non-zero volume.
func (s *MockStream) Audible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.volume > 0
}

// Written returns how many bytes the stream has consumed.
func (s *MockStream) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Advance consumes up to n bytes when playing. At end of data the stream
// stops, as an oto player does.
func (s *MockStream) Advance(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.closed || n <= 0 {
		return
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(s.r, buf)
	s.written += read
	if err != nil {
		s.playing = false
	}
}
