// Package audio provides PCM playback on top of oto/v3. It owns the shared
// output context, decodes WAV data and converts it to the output format,
// and exposes a seekable stream player with volume and mute.
//
// Builds without cgo, or with the nocgo tag, compile a stub context whose
// Shared always returns ErrNoOutput.
package audio
