package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Player errors.
var (
	ErrPlayerClosed   = errors.New("player is closed")
	ErrNothingLoaded  = errors.New("no audio loaded")
	ErrEmptyAudio     = errors.New("audio data is empty")
	ErrVolumeRange    = errors.New("volume must be between 0.0 and 1.0")
	ErrSeekOutOfRange = errors.New("seek position out of range")
)

// State represents the current state of the player.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player plays one PCM buffer at a time on an output context. The buffer
// must already match the context's sample rate and channel count.
type Player struct {
	ctx       Context
	frameSize int // bytes per frame

	mu       sync.Mutex
	stream   Stream
	src      *source
	duration time.Duration
	volume   float64
	muted    bool

	state atomic.Int32
}

// NewPlayer creates a stopped player on ctx.
func NewPlayer(ctx Context) *Player {
	p := &Player{
		ctx:       ctx,
		frameSize: ctx.Channels() * 2,
		volume:    1.0,
	}
	p.state.Store(int32(StateStopped))
	return p
}

// Load replaces the current buffer and leaves the player paused at 0.
func (p *Player) Load(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateClosed {
		return ErrPlayerClosed
	}
	p.releaseLocked()
	p.state.Store(int32(StateStopped))

	// Own the data so the caller cannot mutate it under the output.
	data := make([]byte, len(pcm)-len(pcm)%p.frameSize)
	if len(data) == 0 {
		return ErrEmptyAudio
	}
	copy(data, pcm)

	p.src = &source{r: bytes.NewReader(data)}
	p.stream = p.ctx.NewStream(p.src)
	p.stream.SetVolume(p.effectiveVolumeLocked())
	frames := len(data) / p.frameSize
	p.duration = time.Duration(frames) * time.Second / time.Duration(p.ctx.SampleRate())
	p.state.Store(int32(StatePaused))
	return nil
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateClosed:
		return ErrPlayerClosed
	case StateStopped:
		return ErrNothingLoaded
	}

	p.stream.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Pause halts playback and keeps the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StatePlaying {
		return
	}
	p.stream.Pause()
	p.state.Store(int32(StatePaused))
}

// Stop releases the buffer. It is safe to call at any time.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() == StateClosed {
		return
	}
	p.releaseLocked()
	p.state.Store(int32(StateStopped))
}

// Seek moves to the given position.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return ErrNothingLoaded
	}
	if pos < 0 || pos > p.duration {
		return fmt.Errorf("%w: %v", ErrSeekOutOfRange, pos)
	}

	frame := int64(pos) * int64(p.ctx.SampleRate()) / int64(time.Second)
	if _, err := p.stream.Seek(frame*int64(p.frameSize), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 || volume != volume {
		return fmt.Errorf("%w, got %f", ErrVolumeRange, volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.stream != nil {
		p.stream.SetVolume(p.effectiveVolumeLocked())
	}
	return nil
}

// SetMuted silences the output without stopping it.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
	if p.stream != nil {
		p.stream.SetVolume(p.effectiveVolumeLocked())
	}
}

// Muted reports whether the output is silenced.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Volume returns the configured volume, regardless of mute.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Position returns the position of the audible sample, excluding data
// still buffered in the output.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return 0
	}
	played := p.src.pos() - int64(p.stream.BufferedSize())
	if played < 0 {
		played = 0
	}
	frames := played / int64(p.frameSize)
	pos := time.Duration(frames) * time.Second / time.Duration(p.ctx.SampleRate())
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Duration returns the length of the loaded buffer.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Finished reports whether every loaded sample has been output.
func (p *Player) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.State() != StatePlaying {
		return false
	}
	return p.src.eof() && p.stream.BufferedSize() == 0
}

// State returns the current player state.
func (p *Player) State() State {
	return State(p.state.Load())
}

// Close releases the stream. The player cannot be reused.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

func (p *Player) effectiveVolumeLocked() float64 {
	if p.muted {
		return 0
	}
	return p.volume
}

func (p *Player) releaseLocked() {
	if p.stream != nil {
		p.stream.Pause()
		_ = p.stream.Close()
		p.stream = nil
	}
	p.src = nil
	p.duration = 0
}

// source is a seekable reader shared between the output goroutine and
// position queries.
type source struct {
	mu sync.Mutex
	r  *bytes.Reader
}

func (s *source) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Read(b)
}

func (s *source) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Seek(offset, whence)
}

func (s *source) pos() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Size() - int64(s.r.Len())
}

func (s *source) eof() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Len() == 0
}
