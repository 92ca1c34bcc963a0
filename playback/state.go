package playback

// Phase is the coordinator's position in an audio-load cycle.
type Phase int

const (
	// PhaseIdle indicates no audio reference is set.
	PhaseIdle Phase = iota
	// PhaseLoading indicates the renderer is loading the audio reference.
	PhaseLoading
	// PhaseRoutingCheck indicates the output path is being resolved.
	PhaseRoutingCheck
	// PhaseNativePlayback indicates the native sink is the audible path and
	// the renderer is muted, advancing only for the waveform cursor.
	PhaseNativePlayback
	// PhaseWaveformPlayback indicates the renderer is the audible path.
	PhaseWaveformPlayback
	// PhasePaused indicates audible output is stopped but the resource is kept.
	PhasePaused
	// PhaseFinished indicates the renderer reached the end of the media.
	PhaseFinished
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseRoutingCheck:
		return "routing"
	case PhaseNativePlayback:
		return "native"
	case PhaseWaveformPlayback:
		return "waveform"
	case PhasePaused:
		return "paused"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Path identifies which output produces audible sound.
type Path int

const (
	// PathNone means nothing is audible.
	PathNone Path = iota
	// PathRenderer means the waveform renderer is audible.
	PathRenderer
	// PathNative means the native sink is audible.
	PathNative
)

// String returns the string representation of the path.
func (p Path) String() string {
	switch p {
	case PathRenderer:
		return "renderer"
	case PathNative:
		return "native"
	default:
		return "none"
	}
}

// AudiblePath returns the single output path that is live in this phase.
func (p Phase) AudiblePath() Path {
	switch p {
	case PhaseNativePlayback:
		return PathNative
	case PhaseWaveformPlayback:
		return PathRenderer
	default:
		return PathNone
	}
}

// IsPlaying returns true if one of the playback phases is active.
func (p Phase) IsPlaying() bool {
	return p.AudiblePath() != PathNone
}

// CanToggle returns true if the transport controls function in this phase.
func (p Phase) CanToggle() bool {
	return p != PhaseIdle && p != PhaseLoading
}

// StateMachine manages phase transitions for the playback coordinator.
type StateMachine struct {
	current     Phase
	transitions map[Phase][]Phase
	onEnter     map[Phase]func()
	onExit      map[Phase]func()
}

// NewStateMachine creates a new state machine with valid transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: PhaseIdle,
		transitions: map[Phase][]Phase{
			PhaseIdle:             {PhaseLoading},
			PhaseLoading:          {PhaseLoading, PhaseRoutingCheck, PhasePaused, PhaseIdle},
			PhaseRoutingCheck:     {PhaseNativePlayback, PhaseWaveformPlayback, PhasePaused, PhaseRoutingCheck, PhaseLoading, PhaseIdle},
			PhaseNativePlayback:   {PhaseNativePlayback, PhaseWaveformPlayback, PhasePaused, PhaseFinished, PhaseRoutingCheck, PhaseLoading, PhaseIdle},
			PhaseWaveformPlayback: {PhaseWaveformPlayback, PhasePaused, PhaseFinished, PhaseRoutingCheck, PhaseLoading, PhaseIdle},
			PhasePaused:           {PhaseRoutingCheck, PhaseLoading, PhaseIdle},
			PhaseFinished:         {PhasePaused, PhaseRoutingCheck, PhaseLoading, PhaseIdle},
		},
		onEnter: make(map[Phase]func()),
		onExit:  make(map[Phase]func()),
	}
}

// CanTransition reports whether moving to the given phase is allowed.
func (sm *StateMachine) CanTransition(to Phase) bool {
	for _, p := range sm.transitions[sm.current] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition attempts to transition to the specified phase.
func (sm *StateMachine) Transition(to Phase) bool {
	if !sm.CanTransition(to) {
		return false
	}

	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current phase.
func (sm *StateMachine) Current() Phase {
	return sm.current
}

// OnEnter registers a callback for entering a phase.
func (sm *StateMachine) OnEnter(phase Phase, fn func()) {
	sm.onEnter[phase] = fn
}

// OnExit registers a callback for exiting a phase.
func (sm *StateMachine) OnExit(phase Phase, fn func()) {
	sm.onExit[phase] = fn
}
