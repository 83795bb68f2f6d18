package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Add        key.Binding
	Edit       key.Binding
	Delete     key.Binding
	Clear      key.Binding
	SignOut    key.Binding
	Dismiss    key.Binding
	Quit       key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
	NextField  key.Binding
	Submit     key.Binding
	SignUp     key.Binding
	Anonymous  key.Binding
	ForceQuit  key.Binding
	SaveEdit   key.Binding
	CancelEdit key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:     key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "done")),
		Add:        key.NewBinding(key.WithKeys("a", "n"), key.WithHelp("a", "add")),
		Edit:       key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e", "edit")),
		Delete:     key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		Clear:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear done")),
		SignOut:    key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "sign out")),
		Dismiss:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Confirm:    key.NewBinding(key.WithKeys("y", "enter"), key.WithHelp("y", "confirm")),
		Cancel:     key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
		NextField:  key.NewBinding(key.WithKeys("tab", "shift+tab", "up", "down"), key.WithHelp("tab", "next field")),
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "sign in")),
		SignUp:     key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "sign up")),
		Anonymous:  key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("ctrl+a", "anonymous")),
		ForceQuit:  key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
		SaveEdit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		CancelEdit: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

func helpLine(bindings ...key.Binding) string {
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+h.Desc)
	}
	return joinHelp(parts)
}
