//go:build cgo && !nocgo
// +build cgo,!nocgo

package audio

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// OtoContext is the process-wide oto output context.
type OtoContext struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

var (
	sharedOnce sync.Once
	shared     *OtoContext
	sharedErr  error
)

// readyTimeout bounds how long device initialisation may take.
const readyTimeout = 5 * time.Second

// Shared returns the process-wide output context, creating it on first use.
// oto allows a single context per process, so later options are ignored.
func Shared(opts ContextOptions) (*OtoContext, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = newOtoContext(opts)
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	if opts.SampleRate != shared.sampleRate || opts.Channels != shared.channels {
		log.Debug("Reusing existing audio context",
			"requested_rate", opts.SampleRate,
			"rate", shared.sampleRate,
			"requested_channels", opts.Channels,
			"channels", shared.channels)
	}
	return shared, nil
}

func newOtoContext(opts ContextOptions) (*OtoContext, error) {
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return nil, fmt.Errorf("invalid audio context options: %d Hz, %d channels", opts.SampleRate, opts.Channels)
	}

	options := &oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: opts.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   opts.BufferSize,
	}
	if options.BufferSize == 0 {
		switch runtime.GOOS {
		case "darwin":
			options.BufferSize = 100 * time.Millisecond
		case "windows":
			options.BufferSize = 80 * time.Millisecond
		default:
			options.BufferSize = 50 * time.Millisecond
		}
	}

	log.Debug("Initializing audio context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, readyChan, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	select {
	case <-readyChan:
	case <-time.After(readyTimeout):
		return nil, fmt.Errorf("audio context initialization timeout after %v", readyTimeout)
	}

	return &OtoContext{
		ctx:        ctx,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
	}, nil
}

// NewStream creates a paused oto player reading from r.
func (c *OtoContext) NewStream(r io.Reader) Stream {
	return c.ctx.NewPlayer(r)
}

// SampleRate returns the output sample rate.
func (c *OtoContext) SampleRate() int { return c.sampleRate }

// Channels returns the output channel count.
func (c *OtoContext) Channels() int { return c.channels }
