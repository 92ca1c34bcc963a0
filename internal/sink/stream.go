package sink

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/voxplay/voxplay/internal/audio"
)

var errNotSeekable = errors.New("stream source is not seekable")

// pcmStream feeds signed 16-bit PCM from r to a device callback that pulls
// data instead of being written to.
type pcmStream struct {
	mu      sync.Mutex
	r       io.Reader
	playing bool
	closed  bool
	volume  float64
	onClose func()
}

var _ audio.Stream = (*pcmStream)(nil)

func newPCMStream(r io.Reader, onClose func()) *pcmStream {
	return &pcmStream{r: r, volume: 1, onClose: onClose}
}

// fill copies the next samples into out and returns the bytes written.
// Nothing is written while paused.
func (s *pcmStream) fill(out []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.closed {
		return 0
	}
	n, _ := io.ReadFull(s.r, out[:len(out)&^1])
	n &^= 1
	if s.volume != 1 {
		for i := 0; i < n; i += 2 {
			v := int16(binary.LittleEndian.Uint16(out[i:]))
			binary.LittleEndian.PutUint16(out[i:], uint16(int16(float64(v)*s.volume)))
		}
	}
	return n
}

func (s *pcmStream) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = !s.closed
}

func (s *pcmStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *pcmStream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *pcmStream) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// BufferedSize is always 0: data is read only as the device asks for it.
func (s *pcmStream) BufferedSize() int { return 0 }

func (s *pcmStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeker, ok := s.r.(io.Seeker)
	if !ok {
		return 0, errNotSeekable
	}
	return seeker.Seek(offset, whence)
}

// Close stops the stream and runs onClose once.
func (s *pcmStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.playing = false
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}
