package channels

import (
	"github.com/sahilm/fuzzy"

	"github.com/voxplay/voxplay/playback"
)

type channelSource []playback.Channel

func (s channelSource) String(i int) string { return s[i].Name }
func (s channelSource) Len() int            { return len(s) }

// Filter returns the channels whose name fuzzily matches pattern, best
// match first. An empty pattern returns the list unchanged.
func Filter(list []playback.Channel, pattern string) []playback.Channel {
	if pattern == "" {
		return list
	}
	matches := fuzzy.FindFrom(pattern, channelSource(list))
	out := make([]playback.Channel, 0, len(matches))
	for _, m := range matches {
		out = append(out, list[m.Index])
	}
	return out
}

// Routed reports whether a channel sends audio to dedicated devices.
func Routed(ch playback.Channel) bool {
	return !ch.IsDefault && len(ch.DeviceIDs) > 0
}
