// Package waveform implements the renderer that visualises a loaded audio
// resource as peak bars and, on the default path, plays it.
package waveform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/playback"
)

// Options configures a Renderer.
type Options struct {
	Output  audio.Context
	Fetcher playback.AudioFetcher
	Bars    int
	Tick    time.Duration
	Logger  *log.Logger
}

// Renderer decodes audio into an output player and reports progress
// through playback.RendererEvent callbacks.
type Renderer struct {
	out    audio.Context
	fetch  playback.AudioFetcher
	bars   int
	logger *log.Logger

	mu      sync.Mutex
	player  *audio.Player
	source  string
	gen     uint64
	cancel  context.CancelFunc
	peaks   []float64
	loaded  bool
	playing bool

	events   *dispatcher
	stop     chan struct{}
	wg       sync.WaitGroup
	closeOne sync.Once
}

// New creates a renderer and starts its progress ticker.
func New(opts Options) (*Renderer, error) {
	if opts.Output == nil {
		return nil, playback.NewPlaybackError(
			errors.New("no audio output"), "renderer", "init")
	}
	if opts.Fetcher == nil {
		return nil, playback.NewPlaybackError(
			errors.New("no audio fetcher"), "renderer", "init")
	}
	if opts.Bars <= 0 {
		opts.Bars = 64
	}
	if opts.Tick <= 0 {
		opts.Tick = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("waveform")
	}

	r := &Renderer{
		out:    opts.Output,
		fetch:  opts.Fetcher,
		bars:   opts.Bars,
		logger: opts.Logger,
		player: audio.NewPlayer(opts.Output),
		events: newDispatcher(),
		stop:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.tick(opts.Tick)
	return r, nil
}

// OnEvent registers the event handler. Events are delivered in order on
// a dedicated goroutine.
func (r *Renderer) OnEvent(fn func(playback.RendererEvent)) {
	r.events.setHandler(fn)
}

// Load fetches and decodes url in the background. A later Load or Empty
// supersedes it; its outcome is then dropped.
func (r *Renderer) Load(ctx context.Context, url string) {
	r.mu.Lock()
	r.resetLocked()
	r.gen++
	gen := r.gen
	r.source = url
	loadCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.decode(loadCtx, gen, url)
	}()
}

func (r *Renderer) decode(ctx context.Context, gen uint64, url string) {
	start := time.Now()
	data, err := r.fetch.FetchAudio(ctx, url)
	if err != nil {
		r.fail(gen, url, fmt.Errorf("failed to fetch audio: %w", err))
		return
	}
	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		r.fail(gen, url, err)
		return
	}

	peaks := Peaks(pcm, r.bars)
	buf := pcm.Convert(r.out.SampleRate(), r.out.Channels()).Int16LE()

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.logger.Debug("Discarding superseded load", "url", url)
		return
	}
	if err := r.player.Load(buf); err != nil {
		r.mu.Unlock()
		r.fail(gen, url, err)
		return
	}
	r.peaks = peaks
	r.loaded = true
	duration := r.player.Duration()
	r.mu.Unlock()

	r.logger.Debug("Audio ready",
		"url", url,
		"duration", duration,
		"sample_rate", pcm.SampleRate,
		"channels", pcm.Channels,
		"took", time.Since(start))
	r.events.push(playback.RendererEvent{
		Type:     playback.EventReady,
		Source:   url,
		Duration: duration,
	})
}

func (r *Renderer) fail(gen uint64, url string, err error) {
	r.mu.Lock()
	current := gen == r.gen
	r.mu.Unlock()
	if !current {
		return
	}
	r.logger.Debug("Audio failed to load", "url", url, "err", err)
	r.events.push(playback.RendererEvent{Type: playback.EventError, Source: url, Err: err})
}

// Empty discards the loaded media and any pending load.
func (r *Renderer) Empty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.gen++
	r.source = ""
}

func (r *Renderer) resetLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.player.Stop()
	r.peaks = nil
	r.loaded = false
	r.playing = false
}

// Play starts or resumes playback. At the end of the media it restarts
// from the beginning.
func (r *Renderer) Play() error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return playback.ErrNotLoaded
	}
	if r.player.Position() >= r.player.Duration() {
		if err := r.player.Seek(0); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	if err := r.player.Play(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", playback.ErrPlayRejected, err)
	}
	r.playing = true
	src, pos := r.source, r.player.Position()
	r.mu.Unlock()

	r.events.push(playback.RendererEvent{Type: playback.EventPlay, Source: src, Position: pos})
	return nil
}

// Pause stops advancing and keeps the position.
func (r *Renderer) Pause() {
	r.mu.Lock()
	if !r.playing {
		r.mu.Unlock()
		return
	}
	r.player.Pause()
	r.playing = false
	src, pos := r.source, r.player.Position()
	r.mu.Unlock()

	r.events.push(playback.RendererEvent{Type: playback.EventPause, Source: src, Position: pos})
}

// Seek moves the cursor.
func (r *Renderer) Seek(position time.Duration) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return playback.ErrNotLoaded
	}
	if err := r.player.Seek(position); err != nil {
		r.mu.Unlock()
		return err
	}
	src := r.source
	r.mu.Unlock()

	r.events.push(playback.RendererEvent{Type: playback.EventTimeUpdate, Source: src, Position: position})
	return nil
}

// SetVolume sets the output volume; out of range values are clamped.
func (r *Renderer) SetVolume(volume float64) {
	switch {
	case volume < 0 || volume != volume:
		volume = 0
	case volume > 1:
		volume = 1
	}
	_ = r.player.SetVolume(volume)
}

// SetMuted silences the output while the cursor keeps advancing.
func (r *Renderer) SetMuted(muted bool) {
	r.player.SetMuted(muted)
}

// Muted reports whether the output is silenced.
func (r *Renderer) Muted() bool {
	return r.player.Muted()
}

// Peaks returns the normalised bar heights of the loaded media.
func (r *Renderer) Peaks() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.peaks...)
}

// Position returns the playback cursor.
func (r *Renderer) Position() time.Duration {
	return r.player.Position()
}

// Duration returns the length of the loaded media.
func (r *Renderer) Duration() time.Duration {
	return r.player.Duration()
}

// Playing reports whether the cursor is advancing.
func (r *Renderer) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Close stops the ticker, pending loads and event delivery.
func (r *Renderer) Close() error {
	var err error
	r.closeOne.Do(func() {
		r.mu.Lock()
		r.resetLocked()
		r.gen++
		r.mu.Unlock()

		close(r.stop)
		r.wg.Wait()
		r.events.close()
		err = r.player.Close()
	})
	return err
}

// tick reports progress while playing and detects the end of the media.
func (r *Renderer) tick(every time.Duration) {
	defer r.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			r.poll()
		}
	}
}

// poll emits a timeupdate, or a finish once every sample was output.
func (r *Renderer) poll() {
	r.mu.Lock()
	if !r.playing {
		r.mu.Unlock()
		return
	}
	src := r.source
	if r.player.Finished() {
		r.playing = false
		d := r.player.Duration()
		r.mu.Unlock()
		r.events.push(playback.RendererEvent{Type: playback.EventFinish, Source: src, Position: d})
		return
	}
	pos := r.player.Position()
	r.mu.Unlock()
	r.events.push(playback.RendererEvent{Type: playback.EventTimeUpdate, Source: src, Position: pos})
}

var _ playback.Renderer = (*Renderer)(nil)
