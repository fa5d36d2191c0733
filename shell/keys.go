package shell

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the bindings of the scanner screen.
type KeyMap struct {
	Close key.Binding
	Flash key.Binding
	Retry key.Binding
	Photo key.Binding

	// While typing a photo path.
	Submit key.Binding
	Cancel key.Binding
	Erase  key.Binding
}

// DefaultKeyMap returns the bindings shown in the screen's help line.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Close: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "close")),
		Flash: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "flash")),
		Retry: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry camera")),
		Photo: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "scan photo")),

		Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "scan")),
		Cancel: key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "back")),
		Erase:  key.NewBinding(key.WithKeys("backspace")),
	}
}

func helpLine(bindings ...key.Binding) string {
	var s string
	for i, b := range bindings {
		if i > 0 {
			s += "  "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return s
}
