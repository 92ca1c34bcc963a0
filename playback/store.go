package playback

import (
	"sync"
	"time"
)

// Transport is the observed transport state.
type Transport int

const (
	// TransportStopped means nothing is loaded or playback never started.
	TransportStopped Transport = iota
	// TransportPlaying means an output path is advancing.
	TransportPlaying
	// TransportPaused means playback is halted with the resource kept.
	TransportPaused
)

// String returns the string representation of the transport state.
func (t Transport) String() string {
	switch t {
	case TransportStopped:
		return "stopped"
	case TransportPlaying:
		return "playing"
	case TransportPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the playback state at one point in time.
type Snapshot struct {
	Audio     *AudioRef // nil when no audio is loaded
	ProfileID string
	Phase     Phase
	Transport Transport
	Position  time.Duration
	Duration  time.Duration
	Volume    float64
	Loop      bool
	Devices   []string // Devices addressed by native playback, if live
	LastError error

	// LoadFailed is set when the renderer could not load Audio. The phase
	// stays Loading but nothing is pending.
	LoadFailed bool

	RestartRequested     bool
	AutoAdvanceRequested bool
}

// Progress returns the position as a fraction of the duration.
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Position) / float64(s.Duration)
}

// Store holds the shared playback state. It is mutated only through its
// setters; readers subscribe to be notified after every change.
type Store struct {
	mu    sync.RWMutex
	state Snapshot

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// NewStore creates a store with no audio loaded.
func NewStore(prefs Preferences) *Store {
	return &Store{
		state: Snapshot{
			Volume: clampVolume(prefs.Volume),
			Loop:   prefs.Loop,
		},
		subs: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to be called with a snapshot after every change.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Preferences returns the persisted subset of the state.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Preferences{Volume: s.state.Volume, Loop: s.state.Loop}
}

// SetAudio replaces the current audio reference and resets position and
// duration.
func (s *Store) SetAudio(ref *AudioRef, profileID string) {
	s.update(func(st *Snapshot) {
		if ref != nil {
			r := *ref
			st.Audio = &r
		} else {
			st.Audio = nil
		}
		st.ProfileID = profileID
		st.Position = 0
		st.Duration = 0
		st.Devices = nil
		st.LastError = nil
		st.LoadFailed = false
	})
}

// SetLoadFailed records that the current audio failed to load.
func (s *Store) SetLoadFailed(err error) {
	s.update(func(st *Snapshot) {
		st.LoadFailed = true
		st.LastError = err
	})
}

// SetPhase records the coordinator phase.
func (s *Store) SetPhase(p Phase) {
	s.update(func(st *Snapshot) { st.Phase = p })
}

// SetTransport records the transport state.
func (s *Store) SetTransport(t Transport) {
	s.update(func(st *Snapshot) { st.Transport = t })
}

// SetPosition records the position, clamped to [0, duration] once the
// duration is known.
func (s *Store) SetPosition(pos time.Duration) {
	s.update(func(st *Snapshot) {
		if pos < 0 {
			pos = 0
		}
		if st.Duration > 0 && pos > st.Duration {
			pos = st.Duration
		}
		st.Position = pos
	})
}

// SetDuration records the media duration.
func (s *Store) SetDuration(d time.Duration) {
	s.update(func(st *Snapshot) {
		if d < 0 {
			d = 0
		}
		st.Duration = d
		if d > 0 && st.Position > d {
			st.Position = d
		}
	})
}

// SetVolume records the volume. Values outside [0,1] are rejected.
func (s *Store) SetVolume(v float64) error {
	if v < 0 || v > 1 || v != v {
		return ErrInvalidVolume
	}
	s.update(func(st *Snapshot) { st.Volume = v })
	return nil
}

// SetLoop records the loop flag.
func (s *Store) SetLoop(loop bool) {
	s.update(func(st *Snapshot) { st.Loop = loop })
}

// SetDevices records the devices addressed by native playback.
func (s *Store) SetDevices(devices []string) {
	s.update(func(st *Snapshot) {
		st.Devices = append([]string(nil), devices...)
	})
}

// SetError records the last user-visible error; nil clears it.
func (s *Store) SetError(err error) {
	s.update(func(st *Snapshot) { st.LastError = err })
}

// RequestRestart asks the coordinator to play the current audio from the
// start the next time it is selected.
func (s *Store) RequestRestart() {
	s.update(func(st *Snapshot) { st.RestartRequested = true })
}

// ConsumeRestart reports and clears the restart request.
func (s *Store) ConsumeRestart() bool {
	return s.consume(func(st *Snapshot) *bool { return &st.RestartRequested })
}

// RequestAutoAdvance signals that the finished track should advance.
func (s *Store) RequestAutoAdvance() {
	s.update(func(st *Snapshot) { st.AutoAdvanceRequested = true })
}

// ConsumeAutoAdvance reports and clears the auto-advance request.
func (s *Store) ConsumeAutoAdvance() bool {
	return s.consume(func(st *Snapshot) *bool { return &st.AutoAdvanceRequested })
}

func (s *Store) consume(field func(*Snapshot) *bool) bool {
	var was bool
	s.update(func(st *Snapshot) {
		f := field(st)
		was = *f
		*f = false
	})
	return was
}

func (s *Store) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.copyLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) copyLocked() Snapshot {
	snap := s.state
	if s.state.Audio != nil {
		r := *s.state.Audio
		snap.Audio = &r
	}
	snap.Devices = append([]string(nil), s.state.Devices...)
	return snap
}

func clampVolume(v float64) float64 {
	switch {
	case v != v:
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
