//go:build !cgo || nocgo
// +build !cgo nocgo

package audio

import "io"

// Stub output for static analysis and builds without cgo.

// OtoContext stub for nocgo builds.
type OtoContext struct{}

// Shared always fails without cgo.
func Shared(ContextOptions) (*OtoContext, error) {
	return nil, ErrNoOutput
}

// NewStream is never reached since Shared fails.
func (c *OtoContext) NewStream(io.Reader) Stream { return nil }

func (c *OtoContext) SampleRate() int { return DefaultContextOptions().SampleRate }

func (c *OtoContext) Channels() int { return DefaultContextOptions().Channels }
