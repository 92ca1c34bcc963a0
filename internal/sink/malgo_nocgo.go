//go:build !cgo || nocgo
// +build !cgo nocgo

package sink

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/playback"
)

// MalgoBackend stub for builds without cgo.
type MalgoBackend struct{}

// NewMalgoBackend always fails without cgo.
func NewMalgoBackend(audio.ContextOptions, *log.Logger) (*MalgoBackend, error) {
	return nil, errors.New("multi-device output not available in nocgo build")
}

func (*MalgoBackend) Devices() ([]Device, error) { return nil, playback.ErrSinkUnsupported }

func (*MalgoBackend) Open(Device) (audio.Context, error) { return nil, playback.ErrSinkUnsupported }

func (*MalgoBackend) Close() error { return nil }
