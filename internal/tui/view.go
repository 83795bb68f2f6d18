package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/cellbuf"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
)

const defaultWidth = 80

// View renders the sign in form or the todo list.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.state.Authed == nil {
		return m.formView()
	}
	return m.listView()
}

func (m Model) width() int {
	if m.Width > 0 {
		return m.Width
	}
	return defaultWidth
}

func (m Model) formView() string {
	u := m.state.Unauth
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("todos"))
	sb.WriteString("\n\n")

	label := func(f formField, text string) string {
		if m.focus == f {
			return helpKeyStyle.Render("> " + text)
		}
		return subtleStyle.Render("  " + text)
	}
	var form strings.Builder
	form.WriteString(label(fieldEmail, "Email"))
	form.WriteString("\n")
	form.WriteString(m.email.View())
	form.WriteString("\n\n")
	form.WriteString(label(fieldPassword, "Password"))
	form.WriteString("\n")
	form.WriteString(m.password.View())
	sb.WriteString(formStyle.Render(form.String()))
	sb.WriteString("\n\n")

	switch {
	case u.Pending:
		sb.WriteString(subtleStyle.Render("Signing in..."))
		sb.WriteString("\n\n")
	case u.Err != nil:
		sb.WriteString(m.banner(u.Err))
		sb.WriteString("\n\n")
	}
	if m.state.SignOutErr != nil {
		sb.WriteString(subtleStyle.Render("Last sign out did not reach the server: " + m.state.SignOutErr.Message()))
		sb.WriteString("\n\n")
	}

	sb.WriteString(helpLine(m.keys.Submit, m.keys.SignUp, m.keys.Anonymous, m.keys.NextField, m.keys.ForceQuit))
	return sb.String()
}

func (m Model) listView() string {
	a := m.state.Authed
	l := a.List
	w := m.width()

	var sb strings.Builder
	status := "offline"
	if l.Listening {
		status = "live"
	}
	header := titleStyle.Render("todos") + " " +
		subtleStyle.Render(fmt.Sprintf("%s · %s", a.Session.DisplayName(), status))
	sb.WriteString(ansi.Truncate(header, w, "…"))
	sb.WriteString("\n\n")

	switch {
	case !l.Loaded:
		sb.WriteString(subtleStyle.Render("Loading..."))
		sb.WriteString("\n")
	case len(l.Todos) == 0:
		sb.WriteString(subtleStyle.Render("Nothing to do. Press a to add a todo."))
		sb.WriteString("\n")
	default:
		for i, t := range l.Todos {
			sb.WriteString(m.row(i, t, w))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(subtleStyle.Render(fmt.Sprintf("%d of %d done", len(models.Completed(l.Todos)), len(l.Todos))))
		sb.WriteString("\n")
	}

	if l.Err != nil {
		sb.WriteString("\n")
		sb.WriteString(m.banner(l.Err))
		sb.WriteString(" " + helpStyle.Render("esc to dismiss"))
		sb.WriteString("\n")
	}
	if p := m.prompt(); p != nil {
		sb.WriteString("\n")
		sb.WriteString(promptStyle.Render(promptText(*p)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	switch {
	case m.editing != "":
		sb.WriteString(helpLine(m.keys.SaveEdit, m.keys.CancelEdit))
	case m.prompt() != nil:
		sb.WriteString(helpLine(m.keys.Confirm, m.keys.Cancel))
	default:
		sb.WriteString(helpLine(m.keys.Up, m.keys.Down, m.keys.Toggle, m.keys.Add, m.keys.Edit,
			m.keys.Delete, m.keys.Clear, m.keys.SignOut, m.keys.Quit))
	}
	return sb.String()
}

func (m Model) row(i int, t models.Todo, width int) string {
	prefix := "  "
	if i == m.cursor {
		prefix = "> "
	}
	box := "[ ]"
	if t.Done {
		box = checkStyle.Render("[x]")
	}

	if t.ID == m.editing {
		return prefix + box + " " + m.edit.View()
	}

	avail := width - lipgloss.Width(prefix) - 4
	if avail < 10 {
		avail = 10
	}
	text := ansi.Truncate(t.Text, avail, "…")
	if t.Done {
		text = doneStyle.Render(text)
	}
	line := prefix + box + " " + text
	if i == m.cursor {
		return selectedRowStyle.Render(line)
	}
	return line
}

func (m Model) banner(err *apperr.Error) string {
	return errorBannerStyle.Render(cellbuf.Wrap(err.Message(), m.width()-2, ""))
}

func promptText(p feature.Prompt) string {
	switch p.Kind {
	case feature.PromptSignOut:
		return "Sign out? Your todos stay on the server. (y/n)"
	case feature.PromptClearCompleted:
		if p.Count == 0 {
			return "No completed todos to clear. (n to close)"
		}
		noun := "todos"
		if p.Count == 1 {
			noun = "todo"
		}
		return fmt.Sprintf("Delete %d completed %s? (y/n)", p.Count, noun)
	}
	return ""
}
