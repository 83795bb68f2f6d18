package feature

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/todos/internal/models"
)

// ItemEdited replaces one field of a todo.
type ItemEdited struct {
	ID    models.TodoID
	Field models.Field
	Value any
}

// ItemToggleDone flips a todo's done flag.
type ItemToggleDone struct {
	ID models.TodoID
}

// itemID returns the todo an item action targets.
func itemID(msg tea.Msg) (models.TodoID, bool) {
	switch m := msg.(type) {
	case ItemEdited:
		return m.ID, true
	case ItemToggleDone:
		return m.ID, true
	}
	return "", false
}

// reduceItem applies an item action to a single todo.
func reduceItem(t models.Todo, msg tea.Msg) (models.Todo, error) {
	switch m := msg.(type) {
	case ItemEdited:
		return t.With(m.Field, m.Value)
	case ItemToggleDone:
		return t.With(models.FieldDone, !t.Done)
	}
	return t, nil
}
