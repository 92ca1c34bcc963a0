package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/voxplay/voxplay/playback"
)

var (
	grayColor   = lipgloss.Color("#888888")
	dimColor    = lipgloss.Color("#333333")
	errorColor  = lipgloss.Color("#FF0000")
	nativeColor = lipgloss.Color("#FF8800")
)

// phaseIcon returns an icon for a playback phase.
func phaseIcon(p playback.Phase) string {
	switch p {
	case playback.PhaseNativePlayback, playback.PhaseWaveformPlayback:
		return "▶"
	case playback.PhasePaused:
		return "⏸"
	case playback.PhaseFinished:
		return "■"
	case playback.PhaseLoading, playback.PhaseRoutingCheck:
		return "⟳"
	default:
		return "○"
	}
}

// phaseColor returns the display color of a phase.
func phaseColor(p playback.Phase) lipgloss.Color {
	switch p {
	case playback.PhaseWaveformPlayback:
		return lipgloss.Color("#00FF00")
	case playback.PhaseNativePlayback:
		return nativeColor
	case playback.PhasePaused:
		return lipgloss.Color("#FFFF00")
	case playback.PhaseLoading, playback.PhaseRoutingCheck:
		return lipgloss.Color("#00AAFF")
	default:
		return grayColor
	}
}

// busy reports whether the spinner should run. A failed load leaves the
// phase at Loading with nothing pending.
func busy(s playback.Snapshot) bool {
	if s.LoadFailed {
		return false
	}
	return s.Phase == playback.PhaseLoading || s.Phase == playback.PhaseRoutingCheck
}

// statusLine renders phase, position, volume, loop and output.
func statusLine(s playback.Snapshot) string {
	gray := lipgloss.NewStyle().Foreground(grayColor)
	phase := lipgloss.NewStyle().Foreground(phaseColor(s.Phase)).
		Render(fmt.Sprintf("%s %s", phaseIcon(s.Phase), s.Phase))
	if s.LoadFailed {
		phase = lipgloss.NewStyle().Foreground(errorColor).Render("✗ failed")
	}

	parts := []string{
		phase,
		fmt.Sprintf("%s / %s", formatDuration(s.Position), formatDuration(s.Duration)),
		fmt.Sprintf("vol %3.0f%%", s.Volume*100),
	}
	if s.Loop {
		parts = append(parts, "loop")
	}
	if n := len(s.Devices); n > 0 && s.Phase == playback.PhaseNativePlayback {
		word := "devices"
		if n == 1 {
			word = "device"
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(nativeColor).
			Render(fmt.Sprintf("→ %d %s", n, word)))
	}
	return strings.Join(parts, gray.Render(" • "))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
