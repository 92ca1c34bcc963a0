package playback

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config contains all playback configuration options.
type Config struct {
	// TTS server
	ServerURL      string        `yaml:"server_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // Requests per second
	RateBurst      int           `yaml:"rate_burst"`

	// Output
	NativeRuntime bool   `yaml:"native"`
	DeviceName    string `yaml:"device_name"`
	SampleRate    int    `yaml:"sample_rate"`

	// Playback
	AutoPlay bool    `yaml:"auto_play"`
	Volume   float64 `yaml:"volume"`
	Loop     bool    `yaml:"loop"`

	// Waveform
	WaveformBars int           `yaml:"waveform_bars"`
	TickRate     time.Duration `yaml:"tick_rate"`

	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig sizes the audio byte cache.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MemoryBytes int64         `yaml:"memory_bytes"`
	DiskBytes   int64         `yaml:"disk_bytes"`
	Dir         string        `yaml:"dir"` // Empty selects the user cache dir
	TTL         time.Duration `yaml:"ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServerURL:      "http://127.0.0.1:17493",
		RequestTimeout: 10 * time.Second,
		RateLimit:      10,
		RateBurst:      5,

		NativeRuntime: true,
		DeviceName:    "System Default",
		SampleRate:    44100,

		AutoPlay: true,
		Volume:   1.0,
		Loop:     false,

		WaveformBars: 64,
		TickRate:     100 * time.Millisecond,

		Cache: DefaultCacheConfig(),
	}
}

// DefaultCacheConfig returns default cache sizes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:     true,
		MemoryBytes: 64 << 20,
		DiskBytes:   512 << 20,
		TTL:         7 * 24 * time.Hour,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: invalid server url '%s'", ErrInvalidConfig, c.ServerURL)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.RequestTimeout < time.Second {
		return fmt.Errorf("%w: request_timeout must be at least 1 second, got %v", ErrInvalidConfig, c.RequestTimeout)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("%w: rate_limit must be positive, got %v", ErrInvalidConfig, c.RateLimit)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be at least 1, got %d", ErrInvalidConfig, c.RateBurst)
	}

	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	sampleRateValid := false
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			sampleRateValid = true
			break
		}
	}
	if !sampleRateValid {
		return fmt.Errorf("%w: invalid sample rate %d: must be one of %v", ErrInvalidConfig, c.SampleRate, validSampleRates)
	}

	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("%w: volume must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.Volume)
	}
	if c.WaveformBars < 8 || c.WaveformBars > 512 {
		return fmt.Errorf("%w: waveform_bars must be between 8 and 512, got %d", ErrInvalidConfig, c.WaveformBars)
	}
	if c.TickRate < 10*time.Millisecond || c.TickRate > time.Second {
		return fmt.Errorf("%w: tick_rate must be between 10ms and 1s, got %v", ErrInvalidConfig, c.TickRate)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryBytes <= 0 {
		return fmt.Errorf("%w: memory_bytes must be positive, got %d", ErrInvalidConfig, c.MemoryBytes)
	}
	if c.DiskBytes < 0 {
		return fmt.Errorf("%w: disk_bytes cannot be negative, got %d", ErrInvalidConfig, c.DiskBytes)
	}
	if c.TTL < time.Minute {
		return fmt.Errorf("%w: ttl must be at least 1 minute, got %v", ErrInvalidConfig, c.TTL)
	}
	return nil
}

// Preferences returns the initial preferences implied by the config.
func (c *Config) Preferences() Preferences {
	return Preferences{Volume: c.Volume, Loop: c.Loop}
}
