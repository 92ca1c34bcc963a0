// Package ui provides the terminal player for voxplay.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"

	"github.com/voxplay/voxplay/playback"
)

const (
	statusMessageTimeout = time.Second * 3
	ellipsis             = "…"

	// Row of the waveform, used to map mouse clicks.
	waveformRow = 2
)

// Player is the transport surface the UI drives.
type Player interface {
	Toggle() error
	Seek(pos time.Duration) error
	SeekFraction(f float64) error
	SetVolume(v float64) error
	ToggleLoop() bool
}

// Navigator moves through the play queue.
type Navigator interface {
	Next() error
	Previous() error
	Restart() error
}

// Options wires the model to the playback layer.
type Options struct {
	Player    Player
	Navigator Navigator // optional
	Peaks     func() []float64
	Feed      *playback.Feed
	Snapshot  playback.Snapshot // initial state
	Tracks    []string          // queue titles, in order
}

// maxTrackRows bounds the queue list shown under the status line.
const maxTrackRows = 5

type statusMessageTimeoutMsg struct{ seq int }

type model struct {
	cfg  Config
	opts Options

	snapshot playback.Snapshot
	index    int
	total    int

	keys     keyMap
	help     help.Model
	spinner  spinner.Model
	width    int
	height   int
	showHelp bool

	statusMessage string
	statusSeq     int
	err           error
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, opts Options) *tea.Program {
	log.Debug("starting ui", "alt_screen", cfg.AltScreen, "mouse", cfg.EnableMouse)

	var progOpts []tea.ProgramOption
	if cfg.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		progOpts = append(progOpts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, opts), progOpts...)
}

func newModel(cfg Config, opts Options) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Accent))

	if cfg.SeekStep <= 0 {
		cfg.SeekStep = 5 * time.Second
	}
	if cfg.VolumeStep <= 0 {
		cfg.VolumeStep = 0.05
	}

	return model{
		cfg:      cfg,
		opts:     opts,
		snapshot: opts.Snapshot,
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  sp,
		width:    80,
		showHelp: cfg.ShowHelp,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.opts.Feed != nil {
		cmds = append(cmds, m.opts.Feed.Wait())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case playback.StateChangedMsg:
		m.snapshot = msg.Snapshot
		if playback.IsUserVisible(msg.Snapshot.LastError) {
			m.err = msg.Snapshot.LastError
		} else if msg.Snapshot.Phase.IsPlaying() {
			m.err = nil
		}
		var cmd tea.Cmd
		if m.opts.Feed != nil {
			cmd = m.opts.Feed.Wait()
		}
		return m, cmd

	case playback.ErrorMsg:
		log.Debug("ui error", "component", msg.Component, "action", msg.Action, "err", msg.Err)
		if playback.IsUserVisible(msg.Err) {
			m.err = msg.Err
		}
		return m, nil

	case playback.TrackChangedMsg:
		m.index = msg.Index
		m.total = msg.Total
		m.err = nil
		return m, nil

	case statusMessageTimeoutMsg:
		if msg.seq == m.statusSeq {
			m.statusMessage = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.opts.Player

	// Digits seek to a tenth of the track.
	if s := msg.String(); len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return m, m.run(p.SeekFraction(float64(s[0]-'0') / 10))
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		return m, m.run(p.Toggle())
	case key.Matches(msg, m.keys.Back):
		return m, m.run(p.Seek(max(m.snapshot.Position-m.cfg.SeekStep, 0)))
	case key.Matches(msg, m.keys.Forward):
		target := m.snapshot.Position + m.cfg.SeekStep
		if m.snapshot.Duration > 0 && target > m.snapshot.Duration {
			target = m.snapshot.Duration
		}
		return m, m.run(p.Seek(target))
	case key.Matches(msg, m.keys.VolumeUp):
		return m.setVolume(m.snapshot.Volume + m.cfg.VolumeStep)
	case key.Matches(msg, m.keys.VolumeDown):
		return m.setVolume(m.snapshot.Volume - m.cfg.VolumeStep)
	case key.Matches(msg, m.keys.Loop):
		if p.ToggleLoop() {
			return m.flash("loop on")
		}
		return m.flash("loop off")
	case key.Matches(msg, m.keys.Next):
		if m.opts.Navigator == nil {
			return m, nil
		}
		return m, m.run(m.opts.Navigator.Next())
	case key.Matches(msg, m.keys.Previous):
		if m.opts.Navigator == nil {
			return m, nil
		}
		return m, m.run(m.opts.Navigator.Previous())
	case key.Matches(msg, m.keys.Restart):
		if m.opts.Navigator == nil {
			return m, m.run(p.Seek(0))
		}
		return m, m.run(m.opts.Navigator.Restart())
	case key.Matches(msg, m.keys.Copy):
		if m.snapshot.Audio == nil {
			return m, nil
		}
		if err := clipboard.WriteAll(m.snapshot.Audio.URL); err != nil {
			return m, playback.ErrorCmd(err)
		}
		return m.flash("copied url")
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}
	return m, nil
}

func (m model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	if msg.Y != waveformRow || m.width <= 1 {
		return m, nil
	}
	f := float64(msg.X) / float64(m.width-1)
	return m, m.run(m.opts.Player.SeekFraction(f))
}

func (m model) setVolume(v float64) (tea.Model, tea.Cmd) {
	v = min(max(v, 0), 1)
	if err := m.opts.Player.SetVolume(v); err != nil {
		return m, playback.ErrorCmd(err)
	}
	return m.flash(fmt.Sprintf("volume %.0f%%", v*100))
}

// flash shows a status message that clears after a timeout.
func (m model) flash(s string) (tea.Model, tea.Cmd) {
	m.statusSeq++
	m.statusMessage = s
	seq := m.statusSeq
	return m, tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{seq: seq}
	})
}

// run turns an action error into a command.
func (m model) run(err error) tea.Cmd {
	if err == nil {
		return nil
	}
	return playback.ErrorCmd(err)
}

func (m model) View() string {
	accent := lipgloss.Color(m.cfg.Accent)
	var b strings.Builder

	b.WriteString(m.titleView())
	b.WriteString("\n\n")
	b.WriteString(renderWaveform(m.peaks(), m.width, m.snapshot.Progress(), accent, accent))
	b.WriteString("\n")

	status := statusLine(m.snapshot)
	if busy(m.snapshot) {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(status)
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).
			Render(truncate.StringWithTail("error: "+m.err.Error(), uint(max(m.width, 0)), ellipsis)))
	case m.statusMessage != "":
		b.WriteString(lipgloss.NewStyle().Foreground(grayColor).Render(m.statusMessage))
	}
	b.WriteString("\n")

	if list := m.trackList(); list != "" {
		b.WriteString("\n")
		b.WriteString(list)
	}

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

// trackList renders a window of the queue around the current track.
func (m model) trackList() string {
	n := len(m.opts.Tracks)
	if n < 2 {
		return ""
	}
	start := max(m.index-maxTrackRows/2, 0)
	end := min(start+maxTrackRows, n)
	start = max(end-maxTrackRows, 0)

	accent := lipgloss.NewStyle().Foreground(lipgloss.Color(m.cfg.Accent)).Bold(true)
	gray := lipgloss.NewStyle().Foreground(grayColor)
	var b strings.Builder
	for i := start; i < end; i++ {
		line := truncate.StringWithTail(fmt.Sprintf("%2d. %s", i+1, m.opts.Tracks[i]), uint(max(m.width-2, 1)), ellipsis)
		if i == m.index {
			b.WriteString(accent.Render("› " + line))
		} else {
			b.WriteString(gray.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) peaks() []float64 {
	if m.opts.Peaks == nil || m.snapshot.Audio == nil {
		return nil
	}
	return m.opts.Peaks()
}

// titleView renders the track title on the left and the queue position
// and profile on the right.
func (m model) titleView() string {
	title := "nothing loaded"
	if a := m.snapshot.Audio; a != nil {
		title = a.Title
		if title == "" {
			title = a.URL
		}
	}

	var right []string
	if m.total > 1 {
		right = append(right, fmt.Sprintf("%d/%d", m.index+1, m.total))
	}
	profile := m.snapshot.ProfileID
	if profile == "" {
		profile = m.cfg.Profile
	}
	if profile != "" {
		right = append(right, "@"+profile)
	}
	rhs := strings.Join(right, " ")

	room := m.width - runewidth.StringWidth(rhs) - 1
	if room < 1 {
		room = 1
	}
	title = truncate.StringWithTail(title, uint(room), ellipsis)
	pad := m.width - runewidth.StringWidth(title) - runewidth.StringWidth(rhs)
	if pad < 1 {
		pad = 1
	}

	return lipgloss.NewStyle().Bold(true).Render(title) +
		strings.Repeat(" ", pad) +
		lipgloss.NewStyle().Foreground(grayColor).Render(rhs)
}
