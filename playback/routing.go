package playback

// NativeDevices returns the device ids that native playback should address
// for a profile. The result is empty when the profile has no assigned
// channel that is non-default and has at least one device; in that case the
// waveform path is used.
func NativeDevices(assigned []string, channels []Channel) []string {
	if len(assigned) == 0 || len(channels) == 0 {
		return nil
	}

	want := make(map[string]struct{}, len(assigned))
	for _, id := range assigned {
		want[id] = struct{}{}
	}

	var devices []string
	seen := make(map[string]struct{})
	for _, ch := range channels {
		if _, ok := want[ch.ID]; !ok {
			continue
		}
		if ch.IsDefault || len(ch.DeviceIDs) == 0 {
			continue
		}
		for _, d := range ch.DeviceIDs {
			if _, dup := seen[d]; dup || d == "" {
				continue
			}
			seen[d] = struct{}{}
			devices = append(devices, d)
		}
	}
	return devices
}
