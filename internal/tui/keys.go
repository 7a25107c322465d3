// ABOUTME: Key bindings for the workbench terminal frontend
// ABOUTME: Implements help.KeyMap so the footer lists the active bindings

package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the frontend's key bindings.
type KeyMap struct {
	Conversation key.Binding
	Assistant    key.Binding
	Dismiss      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Conversation: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "conversation"),
	),
	Assistant: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "assistant"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "dismiss"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Conversation, k.Assistant, k.Dismiss, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Conversation, k.Assistant, k.Dismiss},
		{k.Help, k.Quit},
	}
}
