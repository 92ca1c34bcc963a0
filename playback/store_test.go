package playback

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name       string
		prefs      Preferences
		wantVolume float64
		wantLoop   bool
	}{
		{"defaults", DefaultPreferences(), 1, false},
		{"saved values", Preferences{Volume: 0.4, Loop: true}, 0.4, true},
		{"volume above range is clamped", Preferences{Volume: 3}, 1, false},
		{"negative volume is clamped", Preferences{Volume: -1}, 0, false},
		{"NaN volume falls back", Preferences{Volume: math.NaN()}, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewStore(tt.prefs).Snapshot()
			if snap.Volume != tt.wantVolume {
				t.Errorf("Volume = %v, want %v", snap.Volume, tt.wantVolume)
			}
			if snap.Loop != tt.wantLoop {
				t.Errorf("Loop = %v, want %v", snap.Loop, tt.wantLoop)
			}
			if snap.Phase != PhaseIdle || snap.Transport != TransportStopped || snap.Audio != nil {
				t.Errorf("unexpected initial snapshot %+v", snap)
			}
		})
	}
}

func TestStoreSetVolume(t *testing.T) {
	s := NewStore(DefaultPreferences())

	for _, v := range []float64{0, 0.01, 0.5, 0.99, 1} {
		if err := s.SetVolume(v); err != nil {
			t.Errorf("SetVolume(%v) error = %v", v, err)
		}
		if got := s.Snapshot().Volume; got != v {
			t.Errorf("Volume = %v, want %v", got, v)
		}
	}

	for _, v := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		if err := s.SetVolume(v); !errors.Is(err, ErrInvalidVolume) {
			t.Errorf("SetVolume(%v) error = %v, want ErrInvalidVolume", v, err)
		}
	}
	if got := s.Snapshot().Volume; got != 1 {
		t.Errorf("Volume after invalid sets = %v, want 1", got)
	}
}

func TestStorePositionClamping(t *testing.T) {
	s := NewStore(DefaultPreferences())

	s.SetPosition(5 * time.Second)
	if got := s.Snapshot().Position; got != 5*time.Second {
		t.Errorf("Position before duration known = %v, want 5s", got)
	}

	s.SetDuration(3 * time.Second)
	if got := s.Snapshot().Position; got != 3*time.Second {
		t.Errorf("Position after duration = %v, want 3s", got)
	}

	s.SetPosition(-time.Second)
	if got := s.Snapshot().Position; got != 0 {
		t.Errorf("Position = %v, want 0", got)
	}

	s.SetPosition(1500 * time.Millisecond)
	if got := s.Snapshot().Progress(); got != 0.5 {
		t.Errorf("Progress() = %v, want 0.5", got)
	}
}

func TestStoreSetAudioResets(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.SetDuration(time.Second)
	s.SetPosition(time.Second)
	s.SetDevices([]string{"device_a"})
	s.SetError(errors.New("boom"))
	_ = s.SetVolume(0.3)
	s.SetLoop(true)

	s.SetAudio(&AudioRef{ID: "x", URL: "file.wav"}, "p1")

	snap := s.Snapshot()
	if snap.Audio == nil || snap.Audio.ID != "x" || snap.ProfileID != "p1" {
		t.Fatalf("Audio = %+v profile = %q", snap.Audio, snap.ProfileID)
	}
	if snap.Position != 0 || snap.Duration != 0 || len(snap.Devices) != 0 || snap.LastError != nil {
		t.Errorf("SetAudio did not reset per-resource state: %+v", snap)
	}
	if snap.Volume != 0.3 || !snap.Loop {
		t.Errorf("SetAudio should keep preferences, got volume %v loop %v", snap.Volume, snap.Loop)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore(DefaultPreferences())
	s.SetAudio(&AudioRef{ID: "x"}, "")
	s.SetDevices([]string{"device_a"})

	snap := s.Snapshot()
	snap.Audio.ID = "mutated"
	snap.Devices[0] = "mutated"

	again := s.Snapshot()
	if again.Audio.ID != "x" || again.Devices[0] != "device_a" {
		t.Error("mutating a snapshot changed the store")
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := NewStore(DefaultPreferences())

	var got []Phase
	unsub := s.Subscribe(func(snap Snapshot) { got = append(got, snap.Phase) })

	s.SetPhase(PhaseLoading)
	s.SetPhase(PhasePaused)
	unsub()
	s.SetPhase(PhaseIdle)

	if len(got) != 2 || got[0] != PhaseLoading || got[1] != PhasePaused {
		t.Errorf("notifications = %v, want [loading paused]", got)
	}
}

func TestStoreConsumeFlags(t *testing.T) {
	s := NewStore(DefaultPreferences())

	if s.ConsumeRestart() {
		t.Error("ConsumeRestart() without request = true")
	}
	s.RequestRestart()
	if !s.Snapshot().RestartRequested {
		t.Error("RestartRequested should be set")
	}
	if !s.ConsumeRestart() {
		t.Error("ConsumeRestart() = false, want true")
	}
	if s.ConsumeRestart() {
		t.Error("second ConsumeRestart() = true, want false")
	}

	s.RequestAutoAdvance()
	s.RequestAutoAdvance()
	if !s.ConsumeAutoAdvance() {
		t.Error("ConsumeAutoAdvance() = false, want true")
	}
	if s.ConsumeAutoAdvance() {
		t.Error("auto-advance consumed twice")
	}
}

func TestTransportString(t *testing.T) {
	tests := []struct {
		transport Transport
		expected  string
	}{
		{TransportStopped, "stopped"},
		{TransportPlaying, "playing"},
		{TransportPaused, "paused"},
		{Transport(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.transport.String(); got != tt.expected {
			t.Errorf("Transport(%d).String() = %v, want %v", tt.transport, got, tt.expected)
		}
	}
}
