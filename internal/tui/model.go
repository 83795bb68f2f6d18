// Package tui is the interactive terminal UI. The bubbletea program is the
// action pipeline: key presses become feature actions and every message is
// handed to the session reducer.
package tui

import (
	"log/slog"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
)

// Options configures a Model.
type Options struct {
	// Session resumes an earlier sign in. Nil starts at the sign in form.
	Session *models.Session
	// OnSession is called after every sign in and sign out (with nil).
	OnSession func(*models.Session) error
}

type formField int

const (
	fieldEmail formField = iota
	fieldPassword
)

// Model is the main Bubble Tea model for the todos UI
type Model struct {
	env   feature.Environment
	opts  Options
	keys  keyMap
	state feature.SessionState

	// Window dimensions
	Width  int
	Height int

	// Sign in form
	email    textinput.Model
	password textinput.Model
	focus    formField

	// List
	cursor  int
	editing models.TodoID
	edit    textinput.Model

	quitting bool
}

// New returns the model. Nothing runs until the program calls Init.
func New(env feature.Environment, opts Options) Model {
	m := Model{
		env:      env,
		opts:     opts,
		keys:     defaultKeys(),
		state:    feature.NewSession(),
		email:    newInput("email@example.com", 254),
		password: newInput("password", 128),
		edit:     newInput("What needs doing?", 500),
	}
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'
	m.email.Focus()
	return m
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 40
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

// State returns the session state the view renders.
func (m Model) State() feature.SessionState { return m.state }

// Init resumes the stored session, if any.
func (m Model) Init() tea.Cmd {
	if m.opts.Session == nil {
		return nil
	}
	s := *m.opts.Session
	return func() tea.Msg { return feature.Restore{Session: s} }
}

// Update routes key presses to actions and everything else to the reducer.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		if msg.Width > 10 {
			m.edit.Width = msg.Width - 10
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m.dispatch(msg)
}

// dispatch runs msg through the session reducer and reacts to sign in and
// sign out transitions.
func (m Model) dispatch(msg tea.Msg) (Model, tea.Cmd) {
	wasAuthed := m.state.Authenticated()
	var cmd tea.Cmd
	m.state, cmd = m.state.Update(msg, m.env)

	switch {
	case !wasAuthed && m.state.Authenticated():
		m.email.SetValue("")
		m.password.SetValue("")
		m.cursor = 0
		s := m.state.Authed.Session
		cmd = tea.Batch(cmd, m.persist(&s))
	case wasAuthed && !m.state.Authenticated():
		m.editing = ""
		m.focus = fieldEmail
		m.email.Focus()
		m.password.Blur()
		cmd = tea.Batch(cmd, m.persist(nil))
	}
	m.clampCursor()
	return m, cmd
}

func (m Model) persist(s *models.Session) tea.Cmd {
	if m.opts.OnSession == nil {
		return nil
	}
	hook := m.opts.OnSession
	return func() tea.Msg {
		if err := hook(s); err != nil {
			slog.Warn("persist session", "err", err)
		}
		return nil
	}
}

func (m *Model) clampCursor() {
	n := len(m.todos())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) todos() []models.Todo {
	if m.state.Authed == nil {
		return nil
	}
	return m.state.Authed.List.Todos
}

func (m Model) selected() (models.Todo, bool) {
	todos := m.todos()
	if m.cursor < 0 || m.cursor >= len(todos) {
		return models.Todo{}, false
	}
	return todos[m.cursor], true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state.Authed == nil {
		return m.handleFormKey(msg)
	}
	if m.editing != "" {
		return m.handleEditKey(msg)
	}
	if m.prompt() != nil {
		return m.handlePromptKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return m.quit()
	case key.Matches(msg, m.keys.NextField):
		if m.focus == fieldEmail {
			m.focus = fieldPassword
			m.email.Blur()
			m.password.Focus()
		} else {
			m.focus = fieldEmail
			m.password.Blur()
			m.email.Focus()
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		return m.dispatch(feature.SignInRequested{Method: feature.MethodPassword})
	case key.Matches(msg, m.keys.SignUp):
		return m.dispatch(feature.SignInRequested{Method: feature.MethodSignUp})
	case key.Matches(msg, m.keys.Anonymous):
		return m.dispatch(feature.SignInRequested{Method: feature.MethodAnonymous})
	}

	var inputCmd tea.Cmd
	var action tea.Msg
	if m.focus == fieldEmail {
		m.email, inputCmd = m.email.Update(msg)
		if v := m.email.Value(); v != m.state.Unauth.Email {
			action = feature.EmailChanged{Value: v}
		}
	} else {
		m.password, inputCmd = m.password.Update(msg)
		if v := m.password.Value(); v != m.state.Unauth.Password {
			action = feature.PasswordChanged{Value: v}
		}
	}
	if action == nil {
		return m, inputCmd
	}
	m, cmd := m.dispatch(action)
	return m, tea.Batch(inputCmd, cmd)
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CancelEdit):
		m.editing = ""
		m.edit.Blur()
		return m, nil
	case key.Matches(msg, m.keys.SaveEdit):
		id := m.editing
		m.editing = ""
		m.edit.Blur()
		return m.dispatch(feature.ItemEdited{ID: id, Field: models.FieldText, Value: m.edit.Value()})
	}
	var cmd tea.Cmd
	m.edit, cmd = m.edit.Update(msg)
	return m, cmd
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.prompt()
	switch {
	case key.Matches(msg, m.keys.Confirm):
		if p.Kind == feature.PromptSignOut {
			return m.dispatch(feature.SignOutConfirmed{})
		}
		return m.dispatch(feature.ClearCompletedConfirmed{})
	case key.Matches(msg, m.keys.Cancel):
		if p.Kind == feature.PromptSignOut {
			return m.dispatch(feature.SignOutCancelled{})
		}
		return m.dispatch(feature.DismissPrompt{})
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.todos())-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Add):
		return m.dispatch(feature.CreateTodo{})
	case key.Matches(msg, m.keys.Clear):
		return m.dispatch(feature.ClearCompletedRequested{})
	case key.Matches(msg, m.keys.SignOut):
		return m.dispatch(feature.SignOutRequested{})
	case key.Matches(msg, m.keys.Dismiss):
		return m.dispatch(feature.DismissError{})
	}

	t, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Toggle):
		return m.dispatch(feature.ItemToggleDone{ID: t.ID})
	case key.Matches(msg, m.keys.Delete):
		return m.dispatch(feature.ItemDeleteRequested{ID: t.ID})
	case key.Matches(msg, m.keys.Edit):
		m.editing = t.ID
		m.edit.SetValue(t.Text)
		m.edit.CursorEnd()
		m.edit.Focus()
		return m, nil
	}
	return m, nil
}

// prompt returns the confirmation currently showing, sign out first.
func (m Model) prompt() *feature.Prompt {
	if m.state.Authed == nil {
		return nil
	}
	if m.state.Authed.Confirm != nil {
		return m.state.Authed.Confirm
	}
	return m.state.Authed.List.Confirm
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m, _ = m.dispatch(feature.DetachListener{})
	return m, tea.Quit
}
