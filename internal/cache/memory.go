package cache

import (
	"container/list"
	"sync"
	"time"
)

// Memory is a size-bounded LRU of audio buffers.
type Memory struct {
	mu       sync.Mutex
	capacity int64
	ttl      time.Duration
	size     int64
	order    *list.List // front is most recently used
	items    map[string]*list.Element
	stats    Stats
}

type memEntry struct {
	key    string
	data   []byte
	stored time.Time
}

// NewMemory creates an LRU holding at most capacity bytes. Entries older
// than ttl are treated as absent; ttl <= 0 keeps them forever.
func NewMemory(capacity int64, ttl time.Duration) *Memory {
	return &Memory{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the buffer stored under key and marks it recently used.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	e := el.Value.(*memEntry)
	if m.expired(e) {
		m.remove(el)
		m.stats.Expired++
		m.stats.Misses++
		return nil, false
	}

	m.order.MoveToFront(el)
	m.stats.Hits++
	return e.data, true
}

// Put stores data under key, evicting least recently used entries as
// needed.
func (m *Memory) Put(key string, data []byte) error {
	n := int64(len(data))
	if n > m.capacity {
		return ErrItemTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	for m.size+n > m.capacity && m.order.Len() > 0 {
		m.remove(m.order.Back())
		m.stats.Evictions++
	}

	el := m.order.PushFront(&memEntry{key: key, data: data, stored: now()})
	m.items[key] = el
	m.size += n
	return nil
}

// Delete drops key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
}

// Prune drops every expired entry and returns how many were removed.
func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if m.expired(el.Value.(*memEntry)) {
			m.remove(el)
			m.stats.Expired++
			n++
		}
		el = prev
	}
	return n
}

// Clear drops everything.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element)
	m.size = 0
}

// Stats returns a snapshot of usage counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Capacity = m.capacity
	s.Size = m.size
	s.Items = len(m.items)
	return s
}

func (m *Memory) expired(e *memEntry) bool {
	return m.ttl > 0 && now().Sub(e.stored) > m.ttl
}

func (m *Memory) remove(el *list.Element) {
	e := m.order.Remove(el).(*memEntry)
	delete(m.items, e.key)
	m.size -= int64(len(e.data))
}
