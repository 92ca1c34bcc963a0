package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"

	"github.com/voxplay/voxplay/playback"
)

// Manager layers the memory cache over the disk cache.
type Manager struct {
	memory *Memory
	disk   *Disk
	logger *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewManager builds both levels from cfg. An empty cfg.Dir selects the
// user cache directory.
func NewManager(cfg playback.CacheConfig, logger *log.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default().WithPrefix("cache")
	}

	dir := cfg.Dir
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	disk, err := NewDisk(dir, cfg.DiskBytes, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to open disk cache: %w", err)
	}

	m := &Manager{
		memory: NewMemory(cfg.MemoryBytes, cfg.TTL),
		disk:   disk,
		logger: logger,
		stop:   make(chan struct{}),
	}
	st := disk.Stats()
	logger.Debug("Cache opened",
		"dir", dir,
		"entries", st.Items,
		"size", humanize.IBytes(uint64(st.Size)),
		"capacity", humanize.IBytes(uint64(cfg.DiskBytes)))
	return m, nil
}

// DefaultDir returns the per-user audio cache directory.
func DefaultDir() (string, error) {
	scope := gap.NewScope(gap.User, "voxplay")
	dirs, err := scope.CacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	return filepath.Join(dirs, "audio"), nil
}

// Get looks in memory, then on disk. Disk hits are promoted to memory.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, LevelMemory, true
	}

	data, err := m.disk.Get(key)
	if err != nil {
		m.logger.Warn("Dropping unreadable cache entry", "key", key, "err", err)
		return nil, LevelDisk, false
	}
	if data == nil {
		return nil, LevelDisk, false
	}
	_ = m.memory.Put(key, data)
	return data, LevelDisk, true
}

// Put stores data in both levels. An item too large for one level is
// still stored in the other.
func (m *Manager) Put(key string, data []byte) error {
	merr := m.memory.Put(key, data)
	derr := m.disk.Put(key, data)
	if merr != nil && derr != nil {
		return fmt.Errorf("failed to cache %s: %w", humanize.IBytes(uint64(len(data))), derr)
	}
	if derr != nil && !errors.Is(derr, ErrItemTooLarge) {
		m.logger.Warn("Disk cache write failed", "key", key, "err", derr)
	}
	return nil
}

// Delete removes key from both levels.
func (m *Manager) Delete(key string) {
	m.memory.Delete(key)
	m.disk.Delete(key)
}

// Clear empties both levels.
func (m *Manager) Clear() error {
	m.memory.Clear()
	return m.disk.Clear()
}

// Stats returns the snapshot of each level.
func (m *Manager) Stats() (memory, disk Stats) {
	return m.memory.Stats(), m.disk.Stats()
}

// StartCleanup prunes expired entries every interval until Close.
func (m *Manager) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Prune()
			case <-m.stop:
				return
			}
		}
	}()
}

// Prune removes expired entries from both levels.
func (m *Manager) Prune() int {
	n := m.memory.Prune() + m.disk.Prune()
	if n > 0 {
		m.logger.Debug("Pruned expired audio", "entries", n)
	}
	return n
}

// Close stops the cleanup loop and releases the disk codecs.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.stop)
		m.wg.Wait()
		mem, disk := m.Stats()
		m.logger.Debug("Cache closed",
			"memory_hit_rate", fmt.Sprintf("%.0f%%", mem.HitRate()*100),
			"disk_hit_rate", fmt.Sprintf("%.0f%%", disk.HitRate()*100),
			"disk_size", humanize.IBytes(uint64(disk.Size)))
		err = m.disk.Close()
	})
	return err
}

// Fetcher serves remote audio from the cache and falls back to an
// underlying fetcher. Local files are never cached because they may be
// rewritten in place.
type Fetcher struct {
	next   playback.AudioFetcher
	cache  *Manager
	logger *log.Logger
}

// NewFetcher wraps next with cache.
func NewFetcher(next playback.AudioFetcher, cache *Manager) *Fetcher {
	return &Fetcher{next: next, cache: cache, logger: cache.logger}
}

// FetchAudio implements playback.AudioFetcher.
func (f *Fetcher) FetchAudio(ctx context.Context, locator string) ([]byte, error) {
	if !remote(locator) {
		return f.next.FetchAudio(ctx, locator)
	}

	key := Key(locator)
	if data, level, ok := f.cache.Get(key); ok {
		f.logger.Debug("Cache hit", "url", locator, "level", level, "size", humanize.IBytes(uint64(len(data))))
		return data, nil
	}

	data, err := f.next.FetchAudio(ctx, locator)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Put(key, data); err != nil {
		f.logger.Debug("Not caching audio", "url", locator, "err", err)
	}
	return data, nil
}

func remote(locator string) bool {
	u, err := url.Parse(locator)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

var _ playback.AudioFetcher = (*Fetcher)(nil)
