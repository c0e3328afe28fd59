package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the issuance screen.
type KeyMap struct {
	Confirm     key.Binding
	Refresh     key.Binding
	Up          key.Binding
	Down        key.Binding
	Lock        key.Binding
	Issue       key.Binding
	CopyToken   key.Binding
	CopyMessage key.Binding
	Export      key.Binding
	Clear       key.Binding
	CopyHistory key.Binding
	Quit        key.Binding

	// Secret entry.
	Submit key.Binding
	Cancel key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Confirm: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "secret"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "prev pack"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "next pack"),
	),
	Lock: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "lock"),
	),
	Issue: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "issue"),
	),
	CopyToken: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "copy token"),
	),
	CopyMessage: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "copy message"),
	),
	Export: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "export history"),
	),
	Clear: key.NewBinding(
		key.WithKeys("X"),
		key.WithHelp("X", "clear history"),
	),
	CopyHistory: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy latest"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
}
