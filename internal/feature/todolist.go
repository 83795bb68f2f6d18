package feature

import (
	"context"
	"log/slog"
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/models"
)

// Remote operation names carried by RemoteOperationFailed.
const (
	OpSubscribe  = "subscribe"
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpDeleteMany = "delete_many"
)

// PromptKind identifies a pending confirmation.
type PromptKind int

const (
	PromptClearCompleted PromptKind = iota + 1
	PromptSignOut
)

// Prompt is a confirmation waiting for the user.
type Prompt struct {
	Kind PromptKind
	// Count is the number of todos the prompt would affect.
	Count int
}

// Todo list actions.
type (
	// AttachListener opens a fresh subscription, replacing any current one.
	AttachListener struct{}
	// DetachListener releases the subscription.
	DetachListener struct{}
	// SnapshotReceived replaces the list wholesale.
	SnapshotReceived struct{ Todos []models.Todo }
	// SnapshotFailed records a listener error and keeps the list.
	SnapshotFailed struct{ Err error }
	// CreateTodo stores a new draft with Text, or the default text when
	// Text is blank. The list changes on the next snapshot.
	CreateTodo struct{ Text string }
	// TodoCreated reports the persisted result of CreateTodo.
	TodoCreated struct{ Todo models.Todo }
	// TodoUpdated reports a successful write-through.
	TodoUpdated struct{ ID models.TodoID }
	// ItemDeleteRequested deletes a todo. The list changes on the next snapshot.
	ItemDeleteRequested struct{ ID models.TodoID }
	// TodoDeleted reports a successful delete.
	TodoDeleted struct{ ID models.TodoID }
	// ClearCompletedRequested asks for confirmation before deleting done todos.
	ClearCompletedRequested struct{}
	// ClearCompletedConfirmed deletes every done todo. Needs a pending prompt.
	ClearCompletedConfirmed struct{}
	// DismissPrompt drops any pending confirmation.
	DismissPrompt struct{}
	// CompletedCleared reports the outcome of every delete in the batch.
	CompletedCleared struct {
		Result models.BatchResult
		Err    error
	}
	// RemoteOperationFailed records a failed store call.
	RemoteOperationFailed struct {
		Op  string
		Err error
	}
	// DismissError clears the error banner.
	DismissError struct{}
)

// listenToken identifies one AttachListener. Messages carrying any other
// token belong to a replaced subscription and are dropped. ctx is cancelled
// when the token is replaced so a subscribe still in progress gives up.
type listenToken struct {
	owner  string
	ctx    context.Context
	cancel context.CancelFunc
}

func newListenToken(owner string) *listenToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &listenToken{owner: owner, ctx: ctx, cancel: cancel}
}

func (t *listenToken) stop() {
	if t != nil && t.cancel != nil {
		t.cancel()
	}
}

type listenerAttached struct {
	token *listenToken
	sub   Subscription
}

type listenerFailed struct {
	token *listenToken
	err   error
}

type listenEvent struct {
	token *listenToken
	msg   tea.Msg
}

type listenerEnded struct {
	token *listenToken
}

// TodoListState is the signed in user's todo list.
type TodoListState struct {
	Owner string
	// Todos mirrors the last snapshot plus local edits made since.
	Todos []models.Todo
	Err   *apperr.Error
	// Confirm is the pending confirmation, if any.
	Confirm *Prompt
	// Listening is true while a subscription delivers snapshots.
	Listening bool
	// Loaded is true once the first snapshot arrived.
	Loaded bool
	// LastCreated is the id of the most recent TodoCreated.
	LastCreated models.TodoID
	// LastCleared is the outcome of the most recent clear completed.
	LastCleared models.BatchResult
	// InFlight counts writes that have not reported back.
	InFlight int

	store TodoStore
	token *listenToken
	sub   Subscription
}

// NewTodoList returns the empty, unsubscribed list for owner.
func NewTodoList(owner string, store TodoStore) TodoListState {
	return TodoListState{Owner: owner, store: store}
}

// Find returns the index of the todo with id, or -1.
func (l TodoListState) Find(id models.TodoID) int {
	return slices.IndexFunc(l.Todos, func(t models.Todo) bool { return t.ID == id })
}

// Update applies one message to the list.
func (l TodoListState) Update(msg tea.Msg, env Environment) (TodoListState, tea.Cmd) {
	switch m := msg.(type) {
	case AttachListener:
		l.release()
		tok := newListenToken(l.Owner)
		l.token = tok
		return l, l.subscribe(tok, env)

	case DetachListener:
		l.release()
		return l, nil

	case listenerAttached:
		if m.token != l.token {
			closeQuietly(m.sub)
			return l, nil
		}
		l.sub = m.sub
		l.Listening = true
		return l, waitForSnapshot(m.token, m.sub)

	case listenerFailed:
		if m.token != l.token {
			return l, nil
		}
		l.token.stop()
		l.token = nil
		l.Err = apperr.As(apperr.DomainStore, OpSubscribe, m.err)
		return l, nil

	case listenEvent:
		if m.token != l.token {
			return l, nil
		}
		var cmd tea.Cmd
		l, cmd = l.Update(m.msg, env)
		return l, tea.Batch(cmd, waitForSnapshot(m.token, l.sub))

	case listenerEnded:
		if m.token != l.token {
			return l, nil
		}
		l.token.stop()
		l.token = nil
		l.sub = nil
		l.Listening = false
		return l, nil

	case SnapshotReceived:
		todos := make([]models.Todo, 0, len(m.Todos))
		for _, t := range m.Todos {
			if t.OwnerID != l.Owner {
				slog.Warn("dropping todo from another owner", "id", t.ID, "owner", t.OwnerID)
				continue
			}
			todos = append(todos, t)
		}
		models.SortTodos(todos)
		l.Todos = todos
		l.Loaded = true
		return l, nil

	case SnapshotFailed:
		l.Err = apperr.As(apperr.DomainStore, OpSubscribe, m.Err)
		return l, nil

	case CreateTodo:
		l.InFlight++
		return l, l.create(m.Text, env)

	case TodoCreated:
		l.settle()
		l.LastCreated = m.Todo.ID
		return l, nil

	case TodoUpdated, TodoDeleted:
		l.settle()
		return l, nil

	case ItemEdited, ItemToggleDone:
		id, _ := itemID(m)
		i := l.Find(id)
		if i < 0 {
			return l, nil
		}
		edited, err := reduceItem(l.Todos[i], m)
		if err != nil {
			l.Err = apperr.Store(apperr.Unknown, OpUpdate, err)
			return l, nil
		}
		l.Todos = slices.Clone(l.Todos)
		l.Todos[i] = edited
		l.InFlight++
		return l, l.update(edited, env)

	case ItemDeleteRequested:
		i := l.Find(m.ID)
		if i < 0 {
			return l, nil
		}
		l.InFlight++
		return l, l.delete(l.Todos[i], env)

	case ClearCompletedRequested:
		l.Confirm = &Prompt{Kind: PromptClearCompleted, Count: len(models.Completed(l.Todos))}
		return l, nil

	case ClearCompletedConfirmed:
		if l.Confirm == nil || l.Confirm.Kind != PromptClearCompleted {
			return l, nil
		}
		l.Confirm = nil
		done := models.Completed(l.Todos)
		if len(done) == 0 {
			return l, nil
		}
		l.InFlight++
		return l, l.deleteMany(done, env)

	case DismissPrompt:
		l.Confirm = nil
		return l, nil

	case CompletedCleared:
		l.settle()
		l.LastCleared = m.Result
		if m.Err != nil {
			l.Err = apperr.As(apperr.DomainStore, OpDeleteMany, m.Err)
		}
		return l, nil

	case RemoteOperationFailed:
		l.settle()
		l.Err = apperr.As(apperr.DomainStore, m.Op, m.Err)
		return l, nil

	case DismissError:
		l.Err = nil
		return l, nil
	}
	return l, nil
}

func (l *TodoListState) settle() {
	if l.InFlight > 0 {
		l.InFlight--
	}
}

// release closes the current subscription synchronously and abandons any
// subscribe still in progress.
func (l *TodoListState) release() {
	l.token.stop()
	closeQuietly(l.sub)
	l.sub = nil
	l.token = nil
	l.Listening = false
}

func closeQuietly(sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		slog.Debug("close subscription", "err", err)
	}
}

func (l TodoListState) subscribe(tok *listenToken, env Environment) tea.Cmd {
	store := l.store
	return func() tea.Msg {
		ctx, cancel := env.contextFrom(tok.ctx)
		defer cancel()
		sub, err := store.Subscribe(ctx, tok.owner)
		if err != nil {
			return listenerFailed{token: tok, err: err}
		}
		return listenerAttached{token: tok, sub: sub}
	}
}

// waitForSnapshot blocks on the next delivery from sub.
func waitForSnapshot(tok *listenToken, sub Subscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-sub.Snapshots()
		if !ok {
			return listenerEnded{token: tok}
		}
		if snap.Err != nil {
			return listenEvent{token: tok, msg: SnapshotFailed{Err: snap.Err}}
		}
		return listenEvent{token: tok, msg: SnapshotReceived{Todos: snap.Todos}}
	}
}

func (l TodoListState) create(text string, env Environment) tea.Cmd {
	store, owner := l.store, l.Owner
	draft := models.Draft{Text: text}.Normalize()
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()
		t, err := store.Create(ctx, owner, draft)
		if err != nil {
			return RemoteOperationFailed{Op: OpCreate, Err: err}
		}
		return TodoCreated{Todo: t}
	}
}

func (l TodoListState) update(t models.Todo, env Environment) tea.Cmd {
	store := l.store
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()
		if err := store.Update(ctx, t); err != nil {
			return RemoteOperationFailed{Op: OpUpdate, Err: err}
		}
		return TodoUpdated{ID: t.ID}
	}
}

func (l TodoListState) delete(t models.Todo, env Environment) tea.Cmd {
	store := l.store
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()
		if err := store.Delete(ctx, t); err != nil {
			return RemoteOperationFailed{Op: OpDelete, Err: err}
		}
		return TodoDeleted{ID: t.ID}
	}
}

func (l TodoListState) deleteMany(todos []models.Todo, env Environment) tea.Cmd {
	store := l.store
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()
		res, err := store.DeleteMany(ctx, todos)
		return CompletedCleared{Result: res, Err: err}
	}
}
