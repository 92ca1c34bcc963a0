package playback

import (
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages for Bubble Tea communication between the coordinator and the UI.

// StateChangedMsg carries the latest playback snapshot.
type StateChangedMsg struct {
	Snapshot  Snapshot
	Timestamp time.Time
}

// ErrorMsg indicates a user-facing playback error.
type ErrorMsg struct {
	Err       error
	Component string // Which component failed (renderer, sink, resolver)
	Action    string // What was being performed
}

// TrackChangedMsg indicates the queue advanced to another track.
type TrackChangedMsg struct {
	Audio AudioRef
	Index int
	Total int
}

// Feed delivers store snapshots to a Bubble Tea program. Only the newest
// snapshot is kept; intermediate ones are dropped when the UI lags.
type Feed struct {
	ch     chan Snapshot
	mu     sync.Mutex
	closed bool
	unsub  func()
}

// NewFeed subscribes to the store.
func NewFeed(s *Store) *Feed {
	f := &Feed{ch: make(chan Snapshot, 1)}
	f.unsub = s.Subscribe(f.push)
	return f
}

func (f *Feed) push(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- snap
}

// Wait returns a command that blocks until the next snapshot.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-f.ch
		if !ok {
			return nil
		}
		return StateChangedMsg{Snapshot: snap, Timestamp: time.Now()}
	}
}

// Close unsubscribes and releases any waiting command.
func (f *Feed) Close() {
	f.unsub()
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// ErrorCmd wraps an error as a command producing an ErrorMsg.
func ErrorCmd(err error) tea.Cmd {
	return func() tea.Msg {
		msg := ErrorMsg{Err: err}
		var perr *PlaybackError
		if errors.As(err, &perr) {
			msg.Component = perr.Component
			msg.Action = perr.Action
		}
		return msg
	}
}
