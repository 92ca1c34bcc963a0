package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/voxplay/voxplay/internal/queue"
)

// reloadDelay coalesces the bursts of writes a TTS server produces while
// it rewrites a file.
const reloadDelay = 250 * time.Millisecond

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// watchTracks reloads local tracks when they are rewritten on disk. It
// returns when ctx is done.
func watchTracks(ctx context.Context, tracks []queue.Track, reload func(string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close() //nolint:errcheck

	files := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, t := range tracks {
		if !filepath.IsAbs(t.Audio.URL) || !fileExists(t.Audio.URL) {
			continue
		}
		files[t.Audio.URL] = struct{}{}
		dirs[filepath.Dir(t.Audio.URL)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Error("error adding dir to fsnotify watcher", "dir", dir, "error", err)
			continue
		}
		log.Info("fsnotify watching dir", "dir", dir)
	}

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, tracked := files[event.Name]; !tracked {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)

			name := event.Name
			mu.Lock()
			if t, ok := pending[name]; ok {
				t.Reset(reloadDelay)
			} else {
				pending[name] = time.AfterFunc(reloadDelay, func() {
					mu.Lock()
					delete(pending, name)
					mu.Unlock()
					reload(name)
				})
			}
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "error", err)
		}
	}
}
