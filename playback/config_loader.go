package playback

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads playback configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Server settings
	if viper.IsSet("server.url") {
		cfg.ServerURL = viper.GetString("server.url")
	}
	if viper.IsSet("server.timeout") {
		if d, err := time.ParseDuration(viper.GetString("server.timeout")); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if viper.IsSet("server.rate_limit") {
		cfg.RateLimit = viper.GetFloat64("server.rate_limit")
	}
	if viper.IsSet("server.rate_burst") {
		cfg.RateBurst = viper.GetInt("server.rate_burst")
	}

	// Output settings
	if viper.IsSet("playback.native") {
		cfg.NativeRuntime = viper.GetBool("playback.native")
	}
	if viper.IsSet("playback.device_name") {
		cfg.DeviceName = viper.GetString("playback.device_name")
	}
	if viper.IsSet("playback.sample_rate") {
		cfg.SampleRate = viper.GetInt("playback.sample_rate")
	}

	// Playback settings
	if viper.IsSet("playback.auto_play") {
		cfg.AutoPlay = viper.GetBool("playback.auto_play")
	}
	if viper.IsSet("playback.volume") {
		cfg.Volume = viper.GetFloat64("playback.volume")
	}
	if viper.IsSet("playback.loop") {
		cfg.Loop = viper.GetBool("playback.loop")
	}

	// Waveform settings
	if viper.IsSet("waveform.bars") {
		cfg.WaveformBars = viper.GetInt("waveform.bars")
	}
	if viper.IsSet("waveform.tick_rate") {
		if d, err := time.ParseDuration(viper.GetString("waveform.tick_rate")); err == nil {
			cfg.TickRate = d
		}
	}

	cfg.Cache = loadCacheConfig()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid playback configuration: %w", err)
	}

	return cfg, nil
}

// loadCacheConfig loads cache configuration from Viper.
func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("cache.enabled") {
		cfg.Enabled = viper.GetBool("cache.enabled")
	}
	if viper.IsSet("cache.memory_bytes") {
		cfg.MemoryBytes = viper.GetInt64("cache.memory_bytes")
	}
	if viper.IsSet("cache.disk_bytes") {
		cfg.DiskBytes = viper.GetInt64("cache.disk_bytes")
	}
	if viper.IsSet("cache.dir") {
		cfg.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.ttl") {
		if d, err := time.ParseDuration(viper.GetString("cache.ttl")); err == nil {
			cfg.TTL = d
		}
	}

	return cfg
}

// SetDefaults sets default values in Viper for playback configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("server.url", defaults.ServerURL)
	viper.SetDefault("server.timeout", defaults.RequestTimeout.String())
	viper.SetDefault("server.rate_limit", defaults.RateLimit)
	viper.SetDefault("server.rate_burst", defaults.RateBurst)

	viper.SetDefault("playback.native", defaults.NativeRuntime)
	viper.SetDefault("playback.device_name", defaults.DeviceName)
	viper.SetDefault("playback.sample_rate", defaults.SampleRate)
	viper.SetDefault("playback.auto_play", defaults.AutoPlay)
	viper.SetDefault("playback.volume", defaults.Volume)
	viper.SetDefault("playback.loop", defaults.Loop)

	viper.SetDefault("waveform.bars", defaults.WaveformBars)
	viper.SetDefault("waveform.tick_rate", defaults.TickRate.String())

	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.memory_bytes", defaults.Cache.MemoryBytes)
	viper.SetDefault("cache.disk_bytes", defaults.Cache.DiskBytes)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL.String())
}
