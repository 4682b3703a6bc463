package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Select      key.Binding
	Back        key.Binding
	SwitchBound key.Binding
	Earlier     key.Binding
	Later       key.Binding
	EarlierBig  key.Binding
	LaterBig    key.Binding
	EarlierFine key.Binding
	LaterFine   key.Binding
	Clock       key.Binding
	Millis      key.Binding
	Play        key.Binding
	Download    key.Binding
	Quit        key.Binding

	inRange bool
}

func defaultKeyMap() keyMap {
	return keyMap{
		Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "sessions")),
		SwitchBound: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "start/end")),
		Earlier:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/→", "±1s")),
		Later:       key.NewBinding(key.WithKeys("right", "l")),
		EarlierBig:  key.NewBinding(key.WithKeys("shift+left", "H"), key.WithHelp("H/L", "±10s")),
		LaterBig:    key.NewBinding(key.WithKeys("shift+right", "L")),
		EarlierFine: key.NewBinding(key.WithKeys(","), key.WithHelp(",/.", "±100ms")),
		LaterFine:   key.NewBinding(key.WithKeys(".")),
		Clock:       key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "type time")),
		Millis:      key.NewBinding(key.WithKeys("+"), key.WithHelp("+", "set ms")),
		Play:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play")),
		Download:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	if !k.inRange {
		return []key.Binding{k.Select, k.Quit}
	}
	return []key.Binding{k.SwitchBound, k.Earlier, k.EarlierBig, k.EarlierFine, k.Clock, k.Millis, k.Play, k.Download, k.Back, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
