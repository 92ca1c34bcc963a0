package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxplay/voxplay/playback"
)

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/profiles/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/profiles/narrator/channels":
			_ = json.NewEncoder(w).Encode(map[string]any{"channel_ids": []string{"main", "booth"}})
		case "/profiles/broken/channels":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("database is locked"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Profile not found"})
		}
	})
	mux.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode([]playback.Channel{
			{ID: "main", Name: "Main", IsDefault: true},
			{ID: "booth", Name: "Booth Monitors", DeviceIDs: []string{"device_usb_speakers"}},
		})
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/audio/empty" {
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF-bytes"))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGetProfileChannels(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL+"/", time.Second, 0, 1)

	tests := []struct {
		name     string
		profile  string
		expected []string
		check    func(error) bool
	}{
		{"assigned", "narrator", []string{"main", "booth"}, nil},
		{"not found", "ghost", nil, IsNotFound},
		{"empty id", "", nil, func(err error) bool { return errors.Is(err, ErrEmptyProfile) }},
		{"server error", "broken", nil, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode == 500 && se.Detail == "database is locked"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.GetProfileChannels(context.Background(), tt.profile)
			if tt.check != nil {
				if err == nil || !tt.check(err) {
					t.Fatalf("GetProfileChannels() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetProfileChannels() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("GetProfileChannels() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, time.Second, 0, 1)

	_, err := c.GetProfileChannels(context.Background(), "ghost")
	if err == nil || !strings.Contains(err.Error(), "Profile not found") {
		t.Errorf("error = %v, want detail in message", err)
	}
}

func TestListChannels(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, time.Second, 0, 1)

	list, err := c.ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d channels, want 2", len(list))
	}
	if !list[0].IsDefault || list[1].DeviceIDs[0] != "device_usb_speakers" {
		t.Errorf("ListChannels() = %+v", list)
	}

	assigned, _ := c.GetProfileChannels(context.Background(), "narrator")
	devices := playback.NativeDevices(assigned, list)
	if len(devices) != 1 || devices[0] != "device_usb_speakers" {
		t.Errorf("NativeDevices() = %v", devices)
	}
}

func TestFetchAudio(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, time.Second, 0, 1)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "take1.wav")
	if err := os.WriteFile(path, []byte("local-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		locator  string
		expected string
		wantErr  error
	}{
		{"http url", srv.URL + "/audio/gen-1", "RIFF-bytes", nil},
		{"server relative", "/audio/gen-1", "RIFF-bytes", nil},
		{"local path", path, "local-bytes", nil},
		{"file url", "file://" + filepath.ToSlash(path), "local-bytes", nil},
		{"empty response", srv.URL + "/audio/empty", "", ErrEmptyAudio},
		{"empty locator", "", "", ErrEmptyAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.FetchAudio(ctx, tt.locator)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FetchAudio() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchAudio() error = %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("FetchAudio() = %q, want %q", got, tt.expected)
			}
		})
	}

	if _, err := c.FetchAudio(ctx, filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for a missing local file")
	}
}

func TestRateLimit(t *testing.T) {
	srv, hits := newTestServer(t)
	c := NewClient(srv.URL, time.Second, 1, 1)

	if _, err := c.ListChannels(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The bucket is empty; the next request must wait about a second.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.ListChannels(ctx); err == nil {
		t.Fatal("expected the rate limiter to refuse within the deadline")
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	if err := NewClient(srv.URL, time.Second, 0, 1).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	srv.Close()
	if err := NewClient(srv.URL, 200*time.Millisecond, 0, 1).HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck() to fail once the server is gone")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := playback.DefaultConfig()
	c := FromConfig(cfg)
	if c.BaseURL() != cfg.ServerURL {
		t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), cfg.ServerURL)
	}
}

func TestFilter(t *testing.T) {
	list := []playback.Channel{
		{ID: "main", Name: "Main"},
		{ID: "booth", Name: "Booth Monitors", DeviceIDs: []string{"d1"}},
		{ID: "lobby", Name: "Lobby Speakers", DeviceIDs: []string{"d2"}},
	}

	if got := Filter(list, ""); len(got) != 3 {
		t.Errorf("Filter(\"\") returned %d channels, want 3", len(got))
	}
	got := Filter(list, "bmon")
	if len(got) != 1 || got[0].ID != "booth" {
		t.Errorf("Filter(\"bmon\") = %+v", got)
	}
	if got := Filter(list, "zzz"); len(got) != 0 {
		t.Errorf("Filter(\"zzz\") = %+v, want none", got)
	}

	if Routed(list[0]) || !Routed(list[1]) {
		t.Error("Routed() misclassified channels")
	}
}
