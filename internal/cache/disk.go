package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const diskExt = ".zst"

// Disk stores zstd-compressed buffers as one file per key. File
// modification times record the last access, so the directory itself is
// the index and survives restarts.
type Disk struct {
	dir      string
	capacity int64
	ttl      time.Duration

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu    sync.Mutex
	files map[string]diskFile
	size  int64
	stats Stats
}

type diskFile struct {
	size     int64 // compressed bytes on disk
	accessed time.Time
}

// NewDisk opens or creates a disk cache in dir.
func NewDisk(dir string, capacity int64, ttl time.Duration) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	d := &Disk{
		dir:      dir,
		capacity: capacity,
		ttl:      ttl,
		enc:      enc,
		dec:      dec,
		files:    make(map[string]diskFile),
	}
	if err := d.scan(); err != nil {
		return nil, err
	}
	return d, nil
}

// Dir returns the cache directory.
func (d *Disk) Dir() string { return d.dir }

// Get returns and decompresses the buffer stored under key.
func (d *Disk) Get(key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.files[key]
	if !ok {
		d.stats.Misses++
		return nil, nil
	}
	if d.expired(f) {
		d.removeLocked(key)
		d.stats.Expired++
		d.stats.Misses++
		return nil, nil
	}

	raw, err := os.ReadFile(d.path(key))
	if err != nil {
		d.forgetLocked(key)
		d.stats.Misses++
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	data, err := d.dec.DecodeAll(raw, nil)
	if err != nil {
		d.removeLocked(key)
		d.stats.Misses++
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	t := now()
	_ = os.Chtimes(d.path(key), t, t)
	f.accessed = t
	d.files[key] = f
	d.stats.Hits++
	return data, nil
}

// Put compresses and writes data under key.
func (d *Disk) Put(key string, data []byte) error {
	packed := d.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	n := int64(len(packed))
	if n > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.files[key]; ok {
		d.removeLocked(key)
	}
	d.evictLocked(d.capacity - n)

	tmp, err := os.CreateTemp(d.dir, "put-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	_, werr := tmp.Write(packed)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit cache file: %w", err)
	}

	d.files[key] = diskFile{size: n, accessed: now()}
	d.size += n
	return nil
}

// Delete removes key if present.
func (d *Disk) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[key]; ok {
		d.removeLocked(key)
	}
}

// Prune removes expired entries and returns how many were removed.
func (d *Disk) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for key, f := range d.files {
		if d.expired(f) {
			d.removeLocked(key)
			d.stats.Expired++
			n++
		}
	}
	return n
}

// Clear removes every entry.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for key := range d.files {
		if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	d.files = make(map[string]diskFile)
	d.size = 0
	return errors.Join(errs...)
}

// Stats returns a snapshot of usage counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Capacity = d.capacity
	s.Size = d.size
	s.Items = len(d.files)
	return s
}

// Close releases the codec resources.
func (d *Disk) Close() error {
	d.dec.Close()
	return d.enc.Close()
}

// scan rebuilds the in-memory index from the directory.
func (d *Disk) scan() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(filepath.Join(d.dir, name))
			continue
		}
		if !strings.HasSuffix(name, diskExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, diskExt)
		d.files[key] = diskFile{size: info.Size(), accessed: info.ModTime()}
		d.size += info.Size()
	}
	d.evictLocked(d.capacity)
	return nil
}

// evictLocked drops least recently accessed files until size <= target.
func (d *Disk) evictLocked(target int64) {
	if d.size <= target {
		return
	}
	keys := make([]string, 0, len(d.files))
	for k := range d.files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return d.files[keys[i]].accessed.Before(d.files[keys[j]].accessed)
	})
	for _, k := range keys {
		if d.size <= target {
			break
		}
		d.removeLocked(k)
		d.stats.Evictions++
	}
}

func (d *Disk) removeLocked(key string) {
	_ = os.Remove(d.path(key))
	d.forgetLocked(key)
}

func (d *Disk) forgetLocked(key string) {
	d.size -= d.files[key].size
	delete(d.files, key)
}

func (d *Disk) expired(f diskFile) bool {
	return d.ttl > 0 && now().Sub(f.accessed) > d.ttl
}

func (d *Disk) path(key string) string {
	return filepath.Join(d.dir, key+diskExt)
}
