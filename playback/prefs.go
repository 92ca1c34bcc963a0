package playback

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

// Preferences is the part of the playback state that survives reloads.
// Transport and position are never persisted.
type Preferences struct {
	Volume float64 `yaml:"volume"`
	Loop   bool    `yaml:"loop"`
}

// DefaultPreferences returns full volume with looping off.
func DefaultPreferences() Preferences {
	return Preferences{Volume: 1.0}
}

// DefaultPreferencesPath returns the preferences file in the user data dir.
func DefaultPreferencesPath() (string, error) {
	scope := gap.NewScope(gap.User, "voxplay")
	p, err := scope.DataPath("preferences.yml")
	if err != nil {
		return "", fmt.Errorf("unable to resolve data path: %w", err)
	}
	return p, nil
}

// LoadPreferences reads preferences from path. A missing file yields the
// defaults.
func LoadPreferences(path string) (Preferences, error) {
	prefs := DefaultPreferences()

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("unable to read preferences: %w", err)
	}

	if err := yaml.Unmarshal(b, &prefs); err != nil {
		return DefaultPreferences(), fmt.Errorf("unable to parse preferences: %w", err)
	}
	prefs.Volume = clampVolume(prefs.Volume)
	return prefs, nil
}

// SavePreferences writes preferences to path, creating parent directories.
func SavePreferences(path string, prefs Preferences) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}

	b, err := yaml.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("unable to encode preferences: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("unable to write preferences: %w", err)
	}
	return nil
}

// PersistPreferences subscribes to the store and saves volume and loop to
// path whenever either changes. The returned function stops persisting.
func PersistPreferences(s *Store, path string, onError func(error)) func() {
	var mu sync.Mutex
	last := s.Preferences()
	return s.Subscribe(func(snap Snapshot) {
		cur := Preferences{Volume: snap.Volume, Loop: snap.Loop}
		mu.Lock()
		defer mu.Unlock()
		if cur == last {
			return
		}
		last = cur
		if err := SavePreferences(path, cur); err != nil && onError != nil {
			onError(err)
		}
	})
}
