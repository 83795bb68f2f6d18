package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/pipeline"
)

// memStore is an in-memory backend that pushes a full snapshot to every
// live subscription after each write.
type memStore struct {
	mu     sync.Mutex
	todos  []models.Todo
	subs   []*memSub
	nextID int
	closed int
}

type memSub struct {
	store *memStore
	ch    chan models.Snapshot
	once  sync.Once
}

func (s *memSub) Snapshots() <-chan models.Snapshot { return s.ch }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		for i, o := range s.store.subs {
			if o == s {
				s.store.subs = append(s.store.subs[:i], s.store.subs[i+1:]...)
				break
			}
		}
		s.store.closed++
		close(s.ch)
	})
	return nil
}

func (m *memStore) seed(owner string, texts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, text := range texts {
		m.nextID++
		m.todos = append(m.todos, models.Todo{
			ID:        models.TodoID(fmt.Sprintf("t%d", m.nextID)),
			OwnerID:   owner,
			CreatedAt: time.Unix(int64(m.nextID), 0),
			Text:      text,
		})
	}
}

func (m *memStore) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// publish must be called with mu held.
func (m *memStore) publish() {
	snap := models.Snapshot{Todos: append([]models.Todo(nil), m.todos...)}
	for _, s := range m.subs {
		select {
		case s.ch <- snap:
		default:
		}
	}
}

func (m *memStore) Subscribe(_ context.Context, owner string) (feature.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memSub{store: m, ch: make(chan models.Snapshot, 16)}
	m.subs = append(m.subs, sub)
	sub.ch <- models.Snapshot{Todos: append([]models.Todo(nil), m.todos...)}
	return sub, nil
}

func (m *memStore) Create(_ context.Context, owner string, d models.Draft) (models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := models.Todo{
		ID:        models.TodoID(fmt.Sprintf("t%d", m.nextID)),
		OwnerID:   owner,
		CreatedAt: time.Unix(int64(m.nextID), 0),
		Text:      d.Normalize().Text,
		Done:      d.Done,
	}
	m.todos = append(m.todos, t)
	m.publish()
	return t, nil
}

func (m *memStore) Update(_ context.Context, t models.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.todos {
		if m.todos[i].ID == t.ID {
			m.todos[i].Text = t.Text
			m.todos[i].Done = t.Done
			m.publish()
			return nil
		}
	}
	return apperr.Store(apperr.NotFound, "update", nil)
}

func (m *memStore) remove(id models.TodoID) bool {
	for i := range m.todos {
		if m.todos[i].ID == id {
			m.todos = append(m.todos[:i], m.todos[i+1:]...)
			return true
		}
	}
	return false
}

func (m *memStore) Delete(_ context.Context, t models.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.remove(t.ID) {
		return apperr.Store(apperr.NotFound, "delete", nil)
	}
	m.publish()
	return nil
}

func (m *memStore) DeleteMany(_ context.Context, todos []models.Todo) (models.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res models.BatchResult
	for _, t := range todos {
		var err error
		if !m.remove(t.ID) {
			err = apperr.Store(apperr.NotFound, "delete", nil)
		}
		res.Outcomes = append(res.Outcomes, models.DeleteOutcome{ID: t.ID, Err: err})
	}
	m.publish()
	return res, nil
}

type stubAuth struct {
	mu       sync.Mutex
	email    string
	password string
	err      error
	signOuts int
}

func (a *stubAuth) session(anon bool, email string) (models.Session, error) {
	if a.err != nil {
		return models.Session{}, a.err
	}
	return models.Session{UserID: "u1", Email: email, Anonymous: anon, Token: "todos_tok"}, nil
}

func (a *stubAuth) SignInAnonymously(context.Context) (models.Session, error) {
	return a.session(true, "")
}

func (a *stubAuth) SignInWithPassword(_ context.Context, email, password string) (models.Session, error) {
	a.mu.Lock()
	a.email, a.password = email, password
	a.mu.Unlock()
	return a.session(false, email)
}

func (a *stubAuth) SignInWithCredential(context.Context, models.ExternalCredential) (models.Session, error) {
	return a.session(false, "")
}

func (a *stubAuth) SignUp(ctx context.Context, email, password string) (models.Session, error) {
	return a.SignInWithPassword(ctx, email, password)
}

func (a *stubAuth) SignOut(context.Context, models.Session) error {
	a.mu.Lock()
	a.signOuts++
	a.mu.Unlock()
	return nil
}

type harness struct {
	t     *testing.T
	st    *pipeline.Store[Model]
	store *memStore
	auth  *stubAuth

	mu        sync.Mutex
	persisted []*models.Session
}

func newHarness(t *testing.T, session *models.Session) *harness {
	t.Helper()
	h := &harness{t: t, store: &memStore{}, auth: &stubAuth{}}
	env := feature.Environment{
		Auth:    h.auth,
		Store:   func(models.Session) feature.TodoStore { return h.store },
		Timeout: time.Second,
	}
	m := New(env, Options{
		Session: session,
		OnSession: func(s *models.Session) error {
			h.mu.Lock()
			h.persisted = append(h.persisted, s)
			h.mu.Unlock()
			return nil
		},
	})
	h.st = pipeline.New(m, func(m Model, msg tea.Msg) (Model, tea.Cmd) {
		next, cmd := m.Update(msg)
		return next.(Model), cmd
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.st.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if cmd := m.Init(); cmd != nil {
		h.st.Dispatch(cmd())
	}
	return h
}

func (h *harness) press(keys ...tea.KeyMsg) {
	for _, k := range keys {
		h.st.Dispatch(k)
	}
}

func (h *harness) wait(what string, pred func(Model) bool) Model {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := h.st.WaitFor(ctx, pred)
	if err != nil {
		h.t.Fatalf("waiting for %s: %v\nview:\n%s", what, err, m.View())
	}
	return m
}

func (h *harness) signedIn() Model {
	h.t.Helper()
	return h.wait("list loaded", func(m Model) bool {
		return m.State().Authed != nil && m.State().Authed.List.Loaded
	})
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func keyOf(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func todosOf(m Model) []models.Todo {
	if m.State().Authed == nil {
		return nil
	}
	return m.State().Authed.List.Todos
}

func TestAnonymousSignInLoadsList(t *testing.T) {
	h := newHarness(t, nil)
	h.store.seed("u1", "milk")

	h.press(keyOf(tea.KeyCtrlA))
	m := h.signedIn()

	if got := todosOf(m); len(got) != 1 || got[0].Text != "milk" {
		t.Fatalf("todos = %+v", got)
	}
	view := m.View()
	if !strings.Contains(view, "anonymous") || !strings.Contains(view, "milk") {
		t.Errorf("view:\n%s", view)
	}

	h.wait("session persisted", func(Model) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.persisted) == 1 && h.persisted[0] != nil && h.persisted[0].UserID == "u1"
	})
}

func TestPasswordFormSendsBuffers(t *testing.T) {
	h := newHarness(t, nil)
	h.press(runes("a@b.co"), keyOf(tea.KeyTab), runes("hunter22"), keyOf(tea.KeyEnter))
	h.signedIn()

	h.auth.mu.Lock()
	defer h.auth.mu.Unlock()
	if h.auth.email != "a@b.co" || h.auth.password != "hunter22" {
		t.Fatalf("auth got %q / %q", h.auth.email, h.auth.password)
	}
}

func TestSignInFailureShowsBanner(t *testing.T) {
	h := newHarness(t, nil)
	h.auth.err = apperr.Auth(apperr.InvalidCredentials, "password", errors.New("401"))

	h.press(runes("a@b.co"), keyOf(tea.KeyEnter))
	m := h.wait("error", func(m Model) bool { return m.State().Unauth.Err != nil })

	if m.State().Authenticated() {
		t.Fatal("signed in despite error")
	}
	if !strings.Contains(m.View(), "Invalid email or password.") {
		t.Errorf("view:\n%s", m.View())
	}
}

func TestAddToggleEdit(t *testing.T) {
	h := newHarness(t, nil)
	h.press(keyOf(tea.KeyCtrlA))
	h.signedIn()

	h.press(runes("a"))
	h.wait("created", func(m Model) bool { return len(todosOf(m)) == 1 })

	h.press(keyOf(tea.KeySpace))
	h.wait("done", func(m Model) bool {
		todos := todosOf(m)
		return len(todos) == 1 && todos[0].Done
	})

	h.press(runes("e"), keyOf(tea.KeyCtrlU), runes("milk"), keyOf(tea.KeyEnter))
	m := h.wait("edited", func(m Model) bool {
		todos := todosOf(m)
		return len(todos) == 1 && todos[0].Text == "milk"
	})
	if m.editing != "" {
		t.Error("still editing after enter")
	}
}

func TestClearCompletedAsksFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.store.seed("u1", "one", "two")
	h.press(keyOf(tea.KeyCtrlA))
	h.signedIn()

	h.press(keyOf(tea.KeySpace))
	h.wait("first done", func(m Model) bool {
		todos := todosOf(m)
		return len(todos) == 2 && todos[0].Done
	})

	h.press(runes("c"))
	m := h.wait("prompt", func(m Model) bool { return m.prompt() != nil })
	if !strings.Contains(m.View(), "Delete 1 completed todo?") {
		t.Errorf("view:\n%s", m.View())
	}

	h.press(runes("y"))
	m = h.wait("cleared", func(m Model) bool { return len(todosOf(m)) == 1 })
	if todosOf(m)[0].Text != "two" {
		t.Errorf("remaining = %+v", todosOf(m))
	}
}

func TestClearCompletedCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.store.seed("u1", "one")
	h.press(keyOf(tea.KeyCtrlA))
	h.signedIn()

	h.press(runes("c"))
	h.wait("prompt", func(m Model) bool { return m.prompt() != nil })
	h.press(runes("n"))
	m := h.wait("prompt closed", func(m Model) bool { return m.prompt() == nil })
	if len(todosOf(m)) != 1 {
		t.Errorf("todos = %+v", todosOf(m))
	}
}

func TestSignOutReleasesSubscription(t *testing.T) {
	h := newHarness(t, nil)
	h.press(keyOf(tea.KeyCtrlA))
	h.signedIn()
	if h.store.live() != 1 {
		t.Fatalf("live subscriptions = %d", h.store.live())
	}

	h.press(runes("S"))
	m := h.wait("prompt", func(m Model) bool { return m.prompt() != nil })
	if !strings.Contains(m.View(), "Sign out?") {
		t.Errorf("view:\n%s", m.View())
	}

	h.press(runes("y"))
	m = h.wait("signed out", func(m Model) bool { return !m.State().Authenticated() })
	if h.store.live() != 0 {
		t.Errorf("live subscriptions after sign out = %d", h.store.live())
	}
	if !strings.Contains(m.View(), "Email") {
		t.Errorf("view:\n%s", m.View())
	}

	h.wait("sign out persisted", func(Model) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.persisted) == 2 && h.persisted[1] == nil
	})
}

func TestRestoreSkipsForm(t *testing.T) {
	h := newHarness(t, &models.Session{UserID: "u1", Email: "a@b.co", Token: "todos_tok"})
	h.store.seed("u1", "milk")
	m := h.signedIn()
	if !strings.Contains(m.View(), "a@b.co") {
		t.Errorf("view:\n%s", m.View())
	}
}

func TestQuitDetaches(t *testing.T) {
	h := newHarness(t, nil)
	h.press(keyOf(tea.KeyCtrlA))
	h.signedIn()

	h.press(runes("q"))
	m := h.wait("quit", func(m Model) bool { return m.quitting })
	if h.store.live() != 0 {
		t.Errorf("live subscriptions after quit = %d", h.store.live())
	}
	if m.View() != "" {
		t.Errorf("view after quit = %q", m.View())
	}
}

func TestLongTextIsTruncated(t *testing.T) {
	h := newHarness(t, nil)
	h.store.seed("u1", strings.Repeat("long words ", 20))
	h.st.Dispatch(tea.WindowSizeMsg{Width: 30, Height: 10})
	h.press(keyOf(tea.KeyCtrlA))
	m := h.signedIn()

	var found bool
	for _, line := range strings.Split(m.View(), "\n") {
		if !strings.Contains(line, "long") {
			continue
		}
		found = true
		if w := ansi.StringWidth(line); w > 30 {
			t.Errorf("row width %d > 30: %q", w, line)
		}
		if !strings.Contains(line, "…") {
			t.Errorf("row not truncated: %q", line)
		}
	}
	if !found {
		t.Fatalf("row missing:\n%s", m.View())
	}
}
