package waveform

import (
	"math"

	"github.com/voxplay/voxplay/internal/audio"
)

// Peaks reduces pcm to n bars. Each bar is the RMS of its block across all
// channels, scaled so the loudest bar is 1. Silence yields all zeros.
func Peaks(pcm *audio.PCM, n int) []float64 {
	if n <= 0 || pcm == nil || pcm.Channels == 0 {
		return nil
	}
	out := make([]float64, n)
	frames := pcm.Frames()
	if frames == 0 {
		return out
	}

	var loudest float64
	for i := 0; i < n; i++ {
		start := i * frames / n
		end := (i + 1) * frames / n
		if end <= start {
			end = start + 1
		}
		if end > frames {
			end = frames
		}

		var sum float64
		block := pcm.Samples[start*pcm.Channels : end*pcm.Channels]
		for _, s := range block {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(len(block)))
		out[i] = rms
		loudest = math.Max(loudest, rms)
	}

	if loudest > 0 {
		for i := range out {
			out[i] /= loudest
		}
	}
	return out
}

// Cursor returns the index of the bar under position p in [0,1].
func Cursor(p float64, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(p * float64(n))
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}
