package queue

import (
	"errors"
	"sync"

	"github.com/voxplay/voxplay/playback"
)

var (
	// ErrQueueEmpty is returned when the queue holds no tracks.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrEndOfQueue is returned when moving past either end.
	ErrEndOfQueue = errors.New("no more tracks")

	// ErrOutOfRange is returned by Jump for an invalid index.
	ErrOutOfRange = errors.New("track index out of range")
)

// Track is one entry of the queue.
type Track struct {
	Audio   playback.AudioRef
	Profile string
}

// Queue is an ordered track list with a cursor. It is safe for
// concurrent use.
type Queue struct {
	mu     sync.RWMutex
	tracks []Track
	pos    int
	wrap   bool
}

// New creates a queue holding tracks with the cursor on the first one.
func New(tracks ...Track) *Queue {
	return &Queue{tracks: append([]Track(nil), tracks...)}
}

// SetWrap makes Next and Previous cycle around the ends.
func (q *Queue) SetWrap(wrap bool) {
	q.mu.Lock()
	q.wrap = wrap
	q.mu.Unlock()
}

// Add appends tracks without moving the cursor.
func (q *Queue) Add(tracks ...Track) {
	q.mu.Lock()
	q.tracks = append(q.tracks, tracks...)
	q.mu.Unlock()
}

// Current returns the track under the cursor.
func (q *Queue) Current() (Track, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.tracks) == 0 {
		return Track{}, ErrQueueEmpty
	}
	return q.tracks[q.pos], nil
}

// Next moves the cursor forward and returns the new current track.
func (q *Queue) Next() (Track, error) {
	return q.step(1)
}

// Previous moves the cursor back and returns the new current track.
func (q *Queue) Previous() (Track, error) {
	return q.step(-1)
}

func (q *Queue) step(delta int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.tracks)
	if n == 0 {
		return Track{}, ErrQueueEmpty
	}
	next := q.pos + delta
	if next < 0 || next >= n {
		if !q.wrap {
			return Track{}, ErrEndOfQueue
		}
		next = (next%n + n) % n
	}
	q.pos = next
	return q.tracks[next], nil
}

// Jump moves the cursor to index i.
func (q *Queue) Jump(i int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.tracks) {
		return Track{}, ErrOutOfRange
	}
	q.pos = i
	return q.tracks[i], nil
}

// HasNext reports whether Next would succeed.
func (q *Queue) HasNext() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := len(q.tracks)
	return n > 0 && (q.wrap || q.pos < n-1)
}

// Index returns the cursor position.
func (q *Queue) Index() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.pos
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Tracks returns a copy of the track list.
func (q *Queue) Tracks() []Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]Track(nil), q.tracks...)
}

// Find returns the index of the track whose audio has the given URL.
func (q *Queue) Find(url string) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for i, t := range q.tracks {
		if t.Audio.URL == url {
			return i, true
		}
	}
	return -1, false
}
