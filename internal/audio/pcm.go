package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for data that is not a decodable PCM WAV file.
var ErrInvalidWAV = errors.New("invalid wav data")

// PCM is decoded audio: interleaved samples normalised to [-1, 1].
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the playing time.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// DecodeWAV decodes a RIFF/WAVE byte slice.
func DecodeWAV(data []byte) (*PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || buf.Format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}

	return fromIntBuffer(buf, int(dec.BitDepth)), nil
}

func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) *PCM {
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}

	samples := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	}

	return &PCM{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}
}

// Resample converts to the target rate by nearest-sample selection.
func (p *PCM) Resample(rate int) *PCM {
	if rate <= 0 || rate == p.SampleRate || p.Channels == 0 {
		return p
	}

	inFrames := p.Frames()
	outFrames := int(int64(inFrames) * int64(rate) / int64(p.SampleRate))
	out := make([]float32, outFrames*p.Channels)

	for i := 0; i < outFrames; i++ {
		src := int(int64(i) * int64(p.SampleRate) / int64(rate))
		if src >= inFrames {
			src = inFrames - 1
		}
		copy(out[i*p.Channels:(i+1)*p.Channels], p.Samples[src*p.Channels:(src+1)*p.Channels])
	}

	return &PCM{Samples: out, SampleRate: rate, Channels: p.Channels}
}

// AdaptChannels converts to the target channel count. Missing channels
// repeat the last source channel; extra channels are dropped.
func (p *PCM) AdaptChannels(channels int) *PCM {
	if channels <= 0 || channels == p.Channels || p.Channels == 0 {
		return p
	}

	frames := p.Frames()
	out := make([]float32, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			src := c
			if src >= p.Channels {
				src = p.Channels - 1
			}
			out[f*channels+c] = p.Samples[f*p.Channels+src]
		}
	}

	return &PCM{Samples: out, SampleRate: p.SampleRate, Channels: channels}
}

// Convert resamples and adapts channels to match an output context.
func (p *PCM) Convert(rate, channels int) *PCM {
	return p.Resample(rate).AdaptChannels(channels)
}

// Int16LE encodes the samples as signed 16-bit little endian bytes.
func (p *PCM) Int16LE() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return out
}

// EncodeWAV writes the samples as a 16-bit PCM WAV file.
func EncodeWAV(p *PCM) ([]byte, error) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, p.SampleRate, 16, p.Channels, 1)

	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("unable to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize wav: %w", err)
	}
	return ws.buf, nil
}

// memWriteSeeker is an in-memory io.WriteSeeker for the wav encoder, which
// patches the header sizes after writing.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
