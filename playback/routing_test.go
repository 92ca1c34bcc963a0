package playback

import (
	"reflect"
	"testing"
)

func TestNativeDevices(t *testing.T) {
	channels := []Channel{
		{ID: "main", Name: "Main", DeviceIDs: []string{"device_built-in"}, IsDefault: true},
		{ID: "desk", Name: "Desk", DeviceIDs: []string{"device_usb_speakers", "device_hdmi"}},
		{ID: "stream", Name: "Stream", DeviceIDs: []string{"device_hdmi", "device_blackhole_2ch"}},
		{ID: "empty", Name: "Empty"},
	}

	tests := []struct {
		name     string
		assigned []string
		want     []string
	}{
		{"no assignment", nil, nil},
		{"default channel only", []string{"main"}, nil},
		{"channel without devices", []string{"empty"}, nil},
		{"unknown channel", []string{"gone"}, nil},
		{"single routed channel", []string{"desk"}, []string{"device_usb_speakers", "device_hdmi"}},
		{"default mixed with routed", []string{"main", "desk"}, []string{"device_usb_speakers", "device_hdmi"}},
		{"overlapping devices deduplicated", []string{"desk", "stream"}, []string{"device_usb_speakers", "device_hdmi", "device_blackhole_2ch"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NativeDevices(tt.assigned, channels)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NativeDevices(%v) = %v, want %v", tt.assigned, got, tt.want)
			}
		})
	}
}

func TestNativeDevicesNoChannels(t *testing.T) {
	if got := NativeDevices([]string{"desk"}, nil); got != nil {
		t.Errorf("NativeDevices with no channels = %v, want nil", got)
	}
}
