package audio

import (
	"errors"
	"io"
	"time"
)

// ErrNoOutput is returned by Shared in builds without an audio backend.
var ErrNoOutput = errors.New("audio output not available in this build")

// Stream is a single playing source on an output context. *oto.Player
// satisfies it.
type Stream interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	BufferedSize() int
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// Context is an output device able to play signed 16-bit little endian
// interleaved PCM.
type Context interface {
	NewStream(r io.Reader) Stream
	SampleRate() int
	Channels() int
}

// ContextOptions configures the shared output context.
type ContextOptions struct {
	SampleRate int
	Channels   int
	BufferSize time.Duration // Zero selects a platform default
}

// DefaultContextOptions returns CD quality stereo.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{SampleRate: 44100, Channels: 2}
}
