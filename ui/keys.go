package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle     key.Binding
	Back       key.Binding
	Forward    key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Loop       key.Binding
	Next       key.Binding
	Previous   key.Binding
	Restart    key.Binding
	Copy       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Toggle:     key.NewBinding(key.WithKeys(" ", "k"), key.WithHelp("space", "play/pause")),
		Back:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "back")),
		Forward:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "forward")),
		VolumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "louder")),
		VolumeDown: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "quieter")),
		Loop:       key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "loop")),
		Next:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		Previous:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		Restart:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		Copy:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy url")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Loop, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Back, k.Forward, k.Restart},
		{k.VolumeUp, k.VolumeDown, k.Loop},
		{k.Next, k.Previous, k.Copy},
		{k.Help, k.Quit},
	}
}
