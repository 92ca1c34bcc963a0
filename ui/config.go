package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	EnableMouse bool

	// Profile shown in the header
	Profile string

	ShowHelp   bool          `env:"VOXPLAY_SHOW_HELP"   envDefault:"true"`
	AltScreen  bool          `env:"VOXPLAY_ALT_SCREEN"  envDefault:"true"`
	Accent     string        `env:"VOXPLAY_ACCENT"      envDefault:"#00AAFF"`
	SeekStep   time.Duration `env:"VOXPLAY_SEEK_STEP"   envDefault:"5s"`
	VolumeStep float64       `env:"VOXPLAY_VOLUME_STEP" envDefault:"0.05"`
}
