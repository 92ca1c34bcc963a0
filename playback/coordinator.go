// Package playback decides which output path renders an audio resource and
// keeps the waveform visualisation and the audible output consistent.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// errStale marks an async result computed for a superseded load or attempt.
var errStale = errors.New("stale routing result")

// CoordinatorOptions holds the collaborators of a Coordinator.
type CoordinatorOptions struct {
	Renderer Renderer        // Required
	Sink     NativeSink      // Optional; nil in the browser-only target
	Resolver ChannelResolver // Optional; required for native playback
	Fetcher  AudioFetcher    // Optional; required for native playback
	Store    *Store          // Optional; a fresh store is created when nil

	// NativeRuntime reports whether the process runs in an environment
	// exposing the native sink at all.
	NativeRuntime bool

	// AutoPlay starts playback as soon as the renderer is ready.
	AutoPlay bool

	Logger *log.Logger
}

// nativeRoute is what a live native playback was started with, kept so a
// loop can restart it.
type nativeRoute struct {
	audio   []byte
	devices []string
}

// Coordinator owns the output-path decision for the loaded audio resource.
//
// Lock order: sinkMu is always acquired before mu. sinkMu is held across
// native sink start and stop so that a newer load or pause can never
// interleave with a sink start issued for an older one.
type Coordinator struct {
	renderer Renderer
	sink     NativeSink
	resolver ChannelResolver
	fetcher  AudioFetcher
	store    *Store
	logger   *log.Logger

	nativeRuntime bool
	autoPlay      bool

	sinkMu sync.Mutex
	mu     sync.Mutex

	machine      *StateMachine
	token        uint64
	current      *AudioRef
	profileID    string
	nativeActive bool
	native       nativeRoute
	loadFailed   bool
	onFinish     func(AudioRef)

	events   eventQueue
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator in the Idle phase.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Renderer == nil {
		return nil, NewPlaybackError(ErrRendererInit, "renderer", "init")
	}
	if opts.Store == nil {
		opts.Store = NewStore(DefaultPreferences())
	}
	if opts.Logger == nil {
		opts.Logger = log.Default().WithPrefix("playback")
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		renderer:      opts.Renderer,
		sink:          opts.Sink,
		resolver:      opts.Resolver,
		fetcher:       opts.Fetcher,
		store:         opts.Store,
		logger:        opts.Logger,
		nativeRuntime: opts.NativeRuntime,
		autoPlay:      opts.AutoPlay,
		machine:       NewStateMachine(),
		events:        newEventQueue(),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.setupStateMachine()
	c.renderer.SetVolume(c.store.Snapshot().Volume)
	c.renderer.OnEvent(c.events.push)

	return c, nil
}

// Store returns the shared playback state.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// NativeActive reports whether the native sink is the live output.
func (c *Coordinator) NativeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nativeActive
}

// OnFinish registers the callback invoked once when a track ends with loop
// off. The callback may load new audio.
func (c *Coordinator) OnFinish(fn func(AudioRef)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinish = fn
}

// Run processes renderer events until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return nil
		case <-c.events.signal:
			c.processEvents()
		}
	}
}

// Close stops all output and releases the loaded media.
func (c *Coordinator) Close() error {
	c.sinkMu.Lock()
	c.mu.Lock()
	c.token++
	c.stopNativeLocked()
	c.renderer.Empty()
	c.mu.Unlock()
	c.sinkMu.Unlock()

	c.cancel()
	c.inflight.Wait()
	return nil
}

// Load selects a new audio resource produced by the given profile. Any
// in-flight state for the previous resource is discarded.
func (c *Coordinator) Load(ref AudioRef, profileID string) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}

	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	restart := c.store.ConsumeRestart()
	if restart && c.current != nil && *c.current == ref && !c.loadFailed && c.machine.Current().CanToggle() {
		c.logger.Debug("restarting current audio", "id", ref.ID)
		c.pauseLocked()
		_ = c.renderer.Seek(0)
		c.store.SetPosition(0)
		c.startRouteLocked(true)
		return
	}

	c.token++
	c.stopNativeLocked()
	c.renderer.Empty()

	r := ref
	c.current = &r
	c.profileID = profileID
	c.loadFailed = false

	c.store.SetAudio(&r, profileID)
	c.store.SetTransport(TransportStopped)
	c.transitionLocked(PhaseLoading)

	c.logger.Debug("loading audio", "id", ref.ID, "url", ref.URL, "profile", profileID)
	c.renderer.Load(c.ctx, ref.URL)
}

// Unload discards the current resource and returns to Idle.
func (c *Coordinator) Unload() {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token++
	c.stopNativeLocked()
	c.renderer.Empty()
	c.current = nil
	c.profileID = ""
	c.loadFailed = false
	c.store.SetAudio(nil, "")
	c.store.SetTransport(TransportStopped)
	c.transitionLocked(PhaseIdle)
}

// Toggle flips between playing and paused. Starting playback always
// re-resolves routing: the native sink is freshly started, never resumed.
func (c *Coordinator) Toggle() error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReadyLocked(); err != nil {
		return err
	}

	switch c.machine.Current() {
	case PhaseNativePlayback, PhaseWaveformPlayback, PhaseRoutingCheck:
		c.pauseLocked()
	case PhasePaused, PhaseFinished:
		c.playLocked()
	}
	return nil
}

// Play starts playback if it is not already running.
func (c *Coordinator) Play() error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReadyLocked(); err != nil {
		return err
	}
	switch c.machine.Current() {
	case PhasePaused, PhaseFinished:
		c.playLocked()
	}
	return nil
}

// Pause stops audible output, keeping the resource and position.
func (c *Coordinator) Pause() error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReadyLocked(); err != nil {
		return err
	}
	switch c.machine.Current() {
	case PhaseNativePlayback, PhaseWaveformPlayback, PhaseRoutingCheck:
		c.pauseLocked()
	}
	return nil
}

// StopNative stops the native sink. It never fails when nothing is playing
// natively and then leaves the transport untouched.
func (c *Coordinator) StopNative() {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.nativeActive {
		if c.sink != nil {
			if err := c.sink.StopPlayback(); err != nil {
				c.logger.Debug("idle native stop failed", "err", err)
			}
		}
		return
	}
	c.pauseLocked()
}

// Seek moves the cursor. While the native sink is live it is restarted at
// the new position; a sink unable to do so hands over to the waveform.
func (c *Coordinator) Seek(pos time.Duration) error {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkReadyLocked(); err != nil {
		return err
	}

	dur := c.store.Snapshot().Duration
	if pos < 0 || (dur > 0 && pos > dur) {
		return fmt.Errorf("%w: %s", ErrInvalidSeek, pos)
	}
	if err := c.renderer.Seek(pos); err != nil {
		return fmt.Errorf("unable to seek: %w", err)
	}
	c.store.SetPosition(pos)

	switch c.machine.Current() {
	case PhaseFinished:
		c.transitionLocked(PhasePaused)
		c.store.SetTransport(TransportPaused)
	case PhaseNativePlayback:
		if c.nativeActive {
			c.seekNativeLocked(pos)
		}
	}
	return nil
}

// SeekFraction seeks to a fraction in [0,1] of the duration.
func (c *Coordinator) SeekFraction(f float64) error {
	if f < 0 || f > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidSeek, f)
	}
	dur := c.store.Snapshot().Duration
	return c.Seek(time.Duration(f * float64(dur)))
}

// SetVolume sets the volume in [0,1]. While the native sink is live the
// renderer stays muted, so its effective volume remains 0.
func (c *Coordinator) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SetVolume(v); err != nil {
		return err
	}
	c.renderer.SetVolume(v)
	return nil
}

// SetLoop sets the loop flag.
func (c *Coordinator) SetLoop(loop bool) {
	c.store.SetLoop(loop)
}

// ToggleLoop flips the loop flag and returns the new value.
func (c *Coordinator) ToggleLoop() bool {
	loop := !c.store.Snapshot().Loop
	c.store.SetLoop(loop)
	return loop
}

// Private helper methods

func (c *Coordinator) setupStateMachine() {
	for _, p := range []Phase{
		PhaseIdle, PhaseLoading, PhaseRoutingCheck, PhaseNativePlayback,
		PhaseWaveformPlayback, PhasePaused, PhaseFinished,
	} {
		p := p
		c.machine.OnEnter(p, func() { c.store.SetPhase(p) })
	}
}

func (c *Coordinator) transitionLocked(to Phase) bool {
	from := c.machine.Current()
	if !c.machine.Transition(to) {
		c.logger.Debug("ignoring transition", "from", from, "to", to)
		return false
	}
	c.logger.Debug("phase changed", "from", from, "to", to)
	return true
}

func (c *Coordinator) checkReadyLocked() error {
	if c.current == nil {
		return ErrNoAudio
	}
	if c.loadFailed || !c.machine.Current().CanToggle() {
		return ErrNotReady
	}
	return nil
}

func (c *Coordinator) validLocked(token uint64, ref AudioRef) bool {
	return token == c.token && c.current != nil && *c.current == ref
}

func (c *Coordinator) playLocked() {
	snap := c.store.Snapshot()
	if c.machine.Current() == PhaseFinished || (snap.Duration > 0 && snap.Position >= snap.Duration) {
		_ = c.renderer.Seek(0)
		c.store.SetPosition(0)
	}
	c.startRouteLocked(true)
}

// pauseLocked requires sinkMu and mu.
func (c *Coordinator) pauseLocked() {
	c.token++
	if c.nativeActive {
		c.stopNativeLocked()
	}
	c.renderer.Pause()
	c.transitionLocked(PhasePaused)
	c.store.SetTransport(TransportPaused)
}

// stopNativeLocked requires sinkMu and mu.
func (c *Coordinator) stopNativeLocked() {
	if c.sink != nil {
		if err := c.sink.StopPlayback(); err != nil {
			c.logger.Warn("native stop failed", "err", err)
		}
	}
	c.nativeActive = false
	c.native = nativeRoute{}
	c.store.SetDevices(nil)
}

func (c *Coordinator) startRouteLocked(userInitiated bool) {
	c.token++
	token := c.token
	ref := *c.current
	profile := c.profileID

	c.transitionLocked(PhaseRoutingCheck)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.route(token, ref, profile, userInitiated)
	}()
}

// route decides the output path for one playback attempt. It is the single
// decision point for both auto-play on ready and user-triggered play.
func (c *Coordinator) route(token uint64, ref AudioRef, profile string, userInitiated bool) {
	devices, audio, err := c.resolveNative(token, ref, profile)
	switch {
	case errors.Is(err, errStale):
		c.logger.Debug("discarding stale routing result", "id", ref.ID)
		return
	case err != nil:
		c.report("native routing unavailable, using waveform",
			NewPlaybackError(err, "resolver", "route").Silent(), "id", ref.ID)
		c.playWaveform(token, ref, userInitiated)
	case len(devices) == 0:
		c.playWaveform(token, ref, userInitiated)
	default:
		c.playNative(token, ref, audio, devices, userInitiated)
	}
}

func (c *Coordinator) nativeCapable() bool {
	return c.nativeRuntime &&
		c.sink != nil &&
		c.resolver != nil &&
		c.fetcher != nil &&
		c.sink.IsSystemAudioSupported()
}

// resolveNative returns the devices and bytes for native playback, or no
// devices when the waveform path applies.
func (c *Coordinator) resolveNative(token uint64, ref AudioRef, profile string) ([]string, []byte, error) {
	if profile == "" || !c.nativeCapable() {
		return nil, nil, nil
	}

	assigned, err := c.resolver.GetProfileChannels(c.ctx, profile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: profile channels: %w", ErrRoutingFailed, err)
	}
	channels, err := c.resolver.ListChannels(c.ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list channels: %w", ErrRoutingFailed, err)
	}

	devices := NativeDevices(assigned, channels)
	if len(devices) == 0 {
		return nil, nil, nil
	}

	if !c.stillValid(token, ref) {
		return nil, nil, errStale
	}

	audio, err := c.fetcher.FetchAudio(c.ctx, ref.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch audio: %w", ErrRoutingFailed, err)
	}

	c.logger.Debug("native routing resolved", "id", ref.ID, "profile", profile, "devices", devices)
	return devices, audio, nil
}

func (c *Coordinator) stillValid(token uint64, ref AudioRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validLocked(token, ref)
}

func (c *Coordinator) playWaveform(token uint64, ref AudioRef, userInitiated bool) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.validLocked(token, ref) {
		c.logger.Debug("discarding stale waveform start", "id", ref.ID)
		return
	}
	c.startWaveformLocked(userInitiated)
}

// startWaveformLocked requires sinkMu and mu. The sink is stopped before
// the renderer is unmuted.
func (c *Coordinator) startWaveformLocked(userInitiated bool) {
	if c.nativeActive {
		c.stopNativeLocked()
	}

	c.renderer.SetVolume(c.store.Snapshot().Volume)
	c.renderer.SetMuted(false)

	if err := c.renderer.Play(); err != nil {
		c.renderer.Pause()
		c.transitionLocked(PhasePaused)
		c.store.SetTransport(TransportPaused)

		perr := NewPlaybackError(fmt.Errorf("%w: %w", ErrPlayRejected, err), "renderer", "play")
		if !userInitiated {
			perr.Silent()
		}
		c.report("playback rejected", perr)
		return
	}

	c.transitionLocked(PhaseWaveformPlayback)
	c.store.SetTransport(TransportPlaying)
	c.store.SetError(nil)
}

func (c *Coordinator) playNative(token uint64, ref AudioRef, audio []byte, devices []string, userInitiated bool) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	c.mu.Lock()
	if !c.validLocked(token, ref) {
		c.mu.Unlock()
		c.logger.Debug("discarding stale native start", "id", ref.ID)
		return
	}
	c.renderer.SetMuted(true)
	offset := c.store.Snapshot().Position
	c.mu.Unlock()

	err := c.startSink(audio, devices, offset)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.validLocked(token, ref) {
		if err == nil {
			_ = c.sink.StopPlayback()
		}
		c.logger.Debug("native start superseded", "id", ref.ID)
		return
	}

	if err != nil {
		c.report("native playback failed, falling back to waveform",
			NewPlaybackError(err, "sink", "play").Silent(), "id", ref.ID, "devices", devices)
		c.startWaveformLocked(userInitiated)
		return
	}

	c.nativeActive = true
	c.native = nativeRoute{audio: audio, devices: devices}
	c.store.SetDevices(devices)

	if err := c.renderer.Play(); err != nil {
		c.logger.Warn("waveform cursor could not start", "err", err)
	}
	c.transitionLocked(PhaseNativePlayback)
	c.store.SetTransport(TransportPlaying)
	c.store.SetError(nil)
}

// startSink issues a stop before every start so overlapping attempts
// collapse into one audible stream. Requires sinkMu.
func (c *Coordinator) startSink(audio []byte, devices []string, offset time.Duration) error {
	if err := c.sink.StopPlayback(); err != nil {
		c.logger.Debug("stop before start failed", "err", err)
	}

	var err error
	switch s, ok := c.sink.(SeekableSink); {
	case offset <= 0:
		err = c.sink.PlayToDevices(c.ctx, audio, devices)
	case ok:
		err = s.PlayToDevicesFrom(c.ctx, audio, devices, offset)
	default:
		err = ErrSinkCannotSeek
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRoutingFailed, err)
	}
	return nil
}

// seekNativeLocked restarts the live sink at pos. It requires sinkMu and
// mu, and releases mu only while the sink restarts.
func (c *Coordinator) seekNativeLocked(pos time.Duration) {
	token := c.token
	ref := *c.current
	route := c.native

	c.mu.Unlock()
	err := c.startSink(route.audio, route.devices, pos)
	c.mu.Lock()

	if !c.validLocked(token, ref) {
		if err == nil {
			_ = c.sink.StopPlayback()
		}
		return
	}
	if err != nil {
		c.report("native seek failed, switching to waveform",
			NewPlaybackError(err, "sink", "seek").Silent(), "position", pos)
		c.startWaveformLocked(true)
	}
}

// report logs a failure and surfaces it when the error policy says so.
func (c *Coordinator) report(msg string, perr *PlaybackError, keyvals ...any) {
	keyvals = append(keyvals, "err", perr)
	if !IsUserVisible(perr) {
		c.logger.Warn(msg, keyvals...)
		return
	}
	c.logger.Error(msg, keyvals...)
	c.store.SetError(perr)
}

func (c *Coordinator) processEvents() {
	for _, ev := range c.events.drain() {
		c.handleEvent(ev)
	}
}

func (c *Coordinator) handleEvent(ev RendererEvent) {
	switch ev.Type {
	case EventReady:
		c.handleReady(ev)
	case EventError:
		c.handleRendererError(ev)
	case EventTimeUpdate:
		c.handleTimeUpdate(ev)
	case EventFinish:
		c.handleFinish(ev)
	default:
		c.logger.Debug("renderer event", "type", ev.Type, "source", ev.Source)
	}
}

func (c *Coordinator) isSourceLocked(ev RendererEvent) bool {
	return c.current != nil && c.current.URL == ev.Source
}

func (c *Coordinator) handleReady(ev RendererEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isSourceLocked(ev) || c.machine.Current() != PhaseLoading || c.loadFailed {
		return
	}

	c.store.SetDuration(ev.Duration)
	c.store.SetPosition(0)

	if c.autoPlay {
		c.startRouteLocked(false)
		return
	}
	c.transitionLocked(PhasePaused)
	c.store.SetTransport(TransportPaused)
}

func (c *Coordinator) handleRendererError(ev RendererEvent) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isSourceLocked(ev) {
		return
	}

	if c.machine.Current() == PhaseLoading {
		c.loadFailed = true
		c.store.SetTransport(TransportStopped)
		c.store.SetLoadFailed(NewPlaybackError(fmt.Errorf("%w: %w", ErrMediaLoad, ev.Err), "renderer", "load"))
		c.logger.Error("audio failed to load", "url", ev.Source, "err", ev.Err)
		return
	}

	c.pauseLocked()
	c.report("renderer failed during playback", NewPlaybackError(ev.Err, "renderer", "play"), "url", ev.Source)
}

func (c *Coordinator) handleTimeUpdate(ev RendererEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isSourceLocked(ev) || !c.machine.Current().IsPlaying() {
		return
	}
	c.store.SetPosition(ev.Position)
}

func (c *Coordinator) handleFinish(ev RendererEvent) {
	c.sinkMu.Lock()
	c.mu.Lock()

	if !c.isSourceLocked(ev) || !c.machine.Current().IsPlaying() {
		c.mu.Unlock()
		c.sinkMu.Unlock()
		return
	}

	snap := c.store.Snapshot()
	if snap.Loop {
		c.loopLocked()
		c.mu.Unlock()
		c.sinkMu.Unlock()
		return
	}

	if c.nativeActive {
		c.stopNativeLocked()
	}
	c.transitionLocked(PhaseFinished)

	token := c.token
	ref := *c.current
	cb := c.onFinish
	if cb != nil {
		c.store.RequestAutoAdvance()
	}
	c.mu.Unlock()
	c.sinkMu.Unlock()

	if cb != nil && c.store.ConsumeAutoAdvance() {
		cb(ref)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token || c.machine.Current() != PhaseFinished {
		return
	}
	c.store.SetPosition(snap.Duration)
	c.transitionLocked(PhasePaused)
	c.store.SetTransport(TransportPaused)
}

// loopLocked re-enters the active playback phase from position 0. It
// requires sinkMu and mu, and releases mu only while the sink restarts.
func (c *Coordinator) loopLocked() {
	c.store.SetPosition(0)
	_ = c.renderer.Seek(0)

	if c.machine.Current() == PhaseWaveformPlayback {
		if err := c.renderer.Play(); err != nil {
			c.logger.Info("loop restart rejected", "err", err)
			c.pauseLocked()
			return
		}
		c.transitionLocked(PhaseWaveformPlayback)
		c.store.SetTransport(TransportPlaying)
		return
	}

	token := c.token
	ref := *c.current
	route := c.native

	c.mu.Unlock()
	err := c.startSink(route.audio, route.devices, 0)
	c.mu.Lock()

	if !c.validLocked(token, ref) {
		if err == nil {
			_ = c.sink.StopPlayback()
		}
		return
	}
	if err != nil {
		c.report("native loop restart failed, falling back to waveform",
			NewPlaybackError(err, "sink", "loop").Silent())
		c.startWaveformLocked(false)
		return
	}
	if err := c.renderer.Play(); err != nil {
		c.logger.Warn("waveform cursor could not restart", "err", err)
	}
	c.transitionLocked(PhaseNativePlayback)
	c.store.SetTransport(TransportPlaying)
}

// eventQueue is an unbounded FIFO so renderer callbacks never block.
type eventQueue struct {
	mu     sync.Mutex
	items  []RendererEvent
	signal chan struct{}
}

func newEventQueue() eventQueue {
	return eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev RendererEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []RendererEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
