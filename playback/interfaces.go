package playback

import (
	"context"
	"time"
)

// AudioRef identifies and locates an audio resource.
type AudioRef struct {
	ID    string // Stable identifier (generation id, story item id, ...)
	URL   string // Locator: http(s) URL, file:// URL or local path
	Title string // Human-readable label
}

// Channel is a named output routing target with zero or more devices.
type Channel struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	DeviceIDs []string `json:"device_ids"`
	IsDefault bool     `json:"is_default"`
}

// RendererEventType enumerates the callbacks a renderer delivers.
type RendererEventType int

const (
	// EventReady is sent once the media is decoded and its duration known.
	EventReady RendererEventType = iota
	// EventPlay is sent when the renderer starts advancing.
	EventPlay
	// EventPause is sent when the renderer stops advancing.
	EventPause
	// EventTimeUpdate is sent periodically while advancing.
	EventTimeUpdate
	// EventFinish is sent when the end of the media is reached.
	EventFinish
	// EventError is sent when loading or playing the media fails.
	EventError
)

// String returns the string representation of the event type.
func (t RendererEventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventTimeUpdate:
		return "timeupdate"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// RendererEvent is a callback from the waveform renderer.
type RendererEvent struct {
	Type     RendererEventType
	Source   string        // URL the event belongs to
	Position time.Duration // Current position (timeupdate, finish)
	Duration time.Duration // Media duration (ready)
	Err      error         // Failure cause (error)
}

// Renderer visualises audio and, on the waveform path, produces it.
// Implementations must deliver events asynchronously; handlers may call
// back into the renderer.
type Renderer interface {
	// Load starts loading the resource; the outcome arrives as an
	// EventReady or EventError carrying the same source.
	Load(ctx context.Context, url string)

	// Empty discards the loaded media.
	Empty()

	// Play starts or resumes advancing. An error means playback was rejected.
	Play() error

	// Pause stops advancing and keeps the position.
	Pause()

	// Seek moves the cursor to the given position.
	Seek(position time.Duration) error

	// SetVolume sets the output volume in [0,1].
	SetVolume(volume float64)

	// SetMuted silences the output while the cursor keeps advancing.
	SetMuted(muted bool)

	// Muted reports whether the output is silenced.
	Muted() bool

	// OnEvent registers the event handler.
	OnEvent(fn func(RendererEvent))
}

// NativeSink plays raw audio bytes straight to hardware output devices.
// It only supports start and stop.
type NativeSink interface {
	// IsSystemAudioSupported gates whether native playback is ever attempted.
	IsSystemAudioSupported() bool

	// PlayToDevices starts playback on the given devices and returns once
	// the streams are running.
	PlayToDevices(ctx context.Context, audio []byte, deviceIDs []string) error

	// StopPlayback silences every active stream. Safe to call when idle.
	StopPlayback() error
}

// SeekableSink is a NativeSink able to start part way through the audio.
type SeekableSink interface {
	NativeSink

	// PlayToDevicesFrom is PlayToDevices starting at offset.
	PlayToDevicesFrom(ctx context.Context, audio []byte, deviceIDs []string, offset time.Duration) error
}

// ChannelResolver supplies the output channels assigned to a profile.
type ChannelResolver interface {
	GetProfileChannels(ctx context.Context, profileID string) ([]string, error)
	ListChannels(ctx context.Context) ([]Channel, error)
}

// AudioFetcher retrieves the raw bytes of an audio resource.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}
