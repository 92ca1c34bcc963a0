package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/voxplay/voxplay/internal/waveform"
)

var levels = []rune("▁▂▃▄▅▆▇█")

// resample stretches or shrinks peaks to width columns, keeping the
// maximum of each group so short transients stay visible.
func resample(peaks []float64, width int) []float64 {
	if width <= 0 || len(peaks) == 0 {
		return nil
	}
	out := make([]float64, width)
	for i := range out {
		start := i * len(peaks) / width
		end := (i + 1) * len(peaks) / width
		if end <= start {
			end = start + 1
		}
		for _, p := range peaks[start:end] {
			if p > out[i] {
				out[i] = p
			}
		}
	}
	return out
}

// renderWaveform draws one row of bars. Bars left of the cursor are drawn
// in the played color.
func renderWaveform(peaks []float64, width int, progress float64, played, cursor lipgloss.Color) string {
	cols := resample(peaks, width)
	if len(cols) == 0 {
		return lipgloss.NewStyle().Foreground(dimColor).Render(strings.Repeat("─", max(width, 0)))
	}

	at := waveform.Cursor(progress, len(cols))
	var head, tail strings.Builder
	for i, p := range cols {
		idx := int(p * float64(len(levels)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		if i < at {
			head.WriteRune(levels[idx])
		} else if i > at {
			tail.WriteRune(levels[idx])
		}
	}
	mark := string(levels[len(levels)-1])

	return lipgloss.NewStyle().Foreground(played).Render(head.String()) +
		lipgloss.NewStyle().Foreground(cursor).Bold(true).Render(mark) +
		lipgloss.NewStyle().Foreground(grayColor).Render(tail.String())
}
