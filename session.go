package main

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/voxplay/voxplay/internal/queue"
	"github.com/voxplay/voxplay/playback"
)

// loader is the part of the coordinator a session drives.
type loader interface {
	Load(ref playback.AudioRef, profileID string)
	Store() *playback.Store
}

// session ties the track queue to the coordinator. It implements
// ui.Navigator and serves as the coordinator's finish callback.
type session struct {
	queue  *queue.Queue
	player loader
	logger *log.Logger

	mu   sync.Mutex
	send func(tea.Msg)
}

func newSession(q *queue.Queue, player loader, logger *log.Logger) *session {
	return &session{queue: q, player: player, logger: logger}
}

// attach routes track change notifications to a running program.
func (s *session) attach(send func(tea.Msg)) {
	s.mu.Lock()
	s.send = send
	s.mu.Unlock()
}

// Start loads the current track.
func (s *session) Start() error {
	t, err := s.queue.Current()
	if err != nil {
		return err
	}
	s.load(t)
	return nil
}

// Next loads the following track.
func (s *session) Next() error {
	t, err := s.queue.Next()
	if err != nil {
		return err
	}
	s.load(t)
	return nil
}

// Previous loads the preceding track.
func (s *session) Previous() error {
	t, err := s.queue.Previous()
	if err != nil {
		return err
	}
	s.load(t)
	return nil
}

// Restart plays the current track from the beginning without reloading it.
func (s *session) Restart() error {
	t, err := s.queue.Current()
	if err != nil {
		return err
	}
	s.player.Store().RequestRestart()
	s.player.Load(t.Audio, t.Profile)
	return nil
}

// Reload re-reads the track at url, if queued. Used by --watch.
func (s *session) Reload(locator string) {
	i, ok := s.queue.Find(locator)
	if !ok || i != s.queue.Index() {
		return
	}
	t, err := s.queue.Current()
	if err != nil {
		return
	}
	// A fresh id forces a new load instead of a restart.
	t.Audio.ID = uuid.NewString()
	s.logger.Debug("reloading changed audio", "url", locator)
	s.load(t)
}

// advance is the coordinator's finish callback.
func (s *session) advance(finished playback.AudioRef) {
	cur, err := s.queue.Current()
	if err != nil || cur.Audio.ID != finished.ID {
		return
	}
	t, err := s.queue.Next()
	if errors.Is(err, queue.ErrEndOfQueue) {
		s.logger.Debug("end of queue", "id", finished.ID)
		return
	}
	if err != nil {
		s.logger.Warn("auto-advance failed", "err", err)
		return
	}
	s.logger.Debug("auto-advancing", "from", finished.ID, "to", t.Audio.ID)
	s.load(t)
}

func (s *session) load(t queue.Track) {
	s.player.Load(t.Audio, t.Profile)

	s.mu.Lock()
	send := s.send
	s.mu.Unlock()
	if send != nil {
		send(playback.TrackChangedMsg{Audio: t.Audio, Index: s.queue.Index(), Total: s.queue.Len()})
	}
}

// trackFromArg builds a queue entry from a command line argument. Local
// paths are made absolute; URLs are kept as given.
func trackFromArg(arg, profile string) (queue.Track, error) {
	if arg == "" {
		return queue.Track{}, errors.New("empty audio source")
	}

	locator := arg
	title := filepath.Base(arg)
	if u, err := url.Parse(arg); err == nil && strings.Contains(arg, "://") {
		switch u.Scheme {
		case "http", "https", "file":
		default:
			return queue.Track{}, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		title = filepath.Base(u.Path)
	} else if !strings.HasPrefix(arg, "/") || fileExists(arg) {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return queue.Track{}, fmt.Errorf("unable to get absolute path: %w", err)
		}
		locator = abs
		title = filepath.Base(abs)
	}

	return queue.Track{
		Audio: playback.AudioRef{
			ID:    uuid.NewString(),
			URL:   locator,
			Title: strings.TrimSuffix(title, filepath.Ext(title)),
		},
		Profile: profile,
	}, nil
}
