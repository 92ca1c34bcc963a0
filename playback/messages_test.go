package playback

import (
	"errors"
	"testing"
)

func TestFeedKeepsLatest(t *testing.T) {
	s := NewStore(DefaultPreferences())
	f := NewFeed(s)
	defer f.Close()

	s.SetPhase(PhaseLoading)
	s.SetPhase(PhasePaused)
	s.SetLoop(true)

	msg, ok := f.Wait()().(StateChangedMsg)
	if !ok {
		t.Fatal("Wait() did not produce a StateChangedMsg")
	}
	if msg.Snapshot.Phase != PhasePaused || !msg.Snapshot.Loop {
		t.Errorf("snapshot = %+v, want the latest state", msg.Snapshot)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestFeedClose(t *testing.T) {
	s := NewStore(DefaultPreferences())
	f := NewFeed(s)
	f.Close()
	f.Close()

	s.SetPhase(PhaseLoading) // must not panic on a closed feed

	if msg := f.Wait()(); msg != nil {
		t.Errorf("Wait() after Close = %v, want nil", msg)
	}
}

func TestErrorCmd(t *testing.T) {
	msg := ErrorCmd(NewPlaybackError(ErrMediaLoad, "renderer", "load"))().(ErrorMsg)
	if msg.Component != "renderer" || msg.Action != "load" {
		t.Errorf("ErrorMsg = %+v", msg)
	}

	plain := ErrorCmd(errors.New("boom"))().(ErrorMsg)
	if plain.Component != "" || plain.Err == nil {
		t.Errorf("plain ErrorMsg = %+v", plain)
	}
}
