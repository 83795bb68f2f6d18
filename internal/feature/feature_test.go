package feature

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/models"
)

type fakeSub struct {
	ch     chan models.Snapshot
	once   sync.Once
	closed bool
}

func newFakeSub() *fakeSub { return &fakeSub{ch: make(chan models.Snapshot, 8)} }

func (s *fakeSub) Snapshots() <-chan models.Snapshot { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
	})
	return nil
}

type fakeStore struct {
	mu sync.Mutex

	subs    []*fakeSub
	subErr  error
	subCtxs []error

	drafts    []models.Draft
	created   models.Todo
	createErr error

	updates   []models.Todo
	updateErr error

	deletes   []models.Todo
	deleteErr error

	batches  [][]models.Todo
	batchErr error
}

func (f *fakeStore) Subscribe(ctx context.Context, owner string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCtxs = append(f.subCtxs, ctx.Err())
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := newFakeSub()
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeStore) Create(ctx context.Context, owner string, d models.Draft) (models.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return f.created, f.createErr
}

func (f *fakeStore) Update(ctx context.Context, t models.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, t)
	return f.updateErr
}

func (f *fakeStore) Delete(ctx context.Context, t models.Todo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, t)
	return f.deleteErr
}

func (f *fakeStore) DeleteMany(ctx context.Context, todos []models.Todo) (models.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, todos)
	var res models.BatchResult
	for _, t := range todos {
		res.Outcomes = append(res.Outcomes, models.DeleteOutcome{ID: t.ID, Err: f.batchErr})
	}
	return res, f.batchErr
}

func (f *fakeStore) live() int {
	n := 0
	for _, s := range f.subs {
		if !s.closed {
			n++
		}
	}
	return n
}

type fakeAuth struct {
	session   models.Session
	err       error
	signOuts  []models.Session
	signOut   error
	lastEmail string
	lastCred  models.ExternalCredential
	calls     []string
}

func (a *fakeAuth) SignInAnonymously(ctx context.Context) (models.Session, error) {
	a.calls = append(a.calls, "anonymous")
	return a.session, a.err
}

func (a *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (models.Session, error) {
	a.calls = append(a.calls, "password")
	a.lastEmail = email
	return a.session, a.err
}

func (a *fakeAuth) SignInWithCredential(ctx context.Context, cred models.ExternalCredential) (models.Session, error) {
	a.calls = append(a.calls, "credential")
	a.lastCred = cred
	return a.session, a.err
}

func (a *fakeAuth) SignUp(ctx context.Context, email, password string) (models.Session, error) {
	a.calls = append(a.calls, "signup")
	a.lastEmail = email
	return a.session, a.err
}

func (a *fakeAuth) SignOut(ctx context.Context, s models.Session) error {
	a.signOuts = append(a.signOuts, s)
	return a.signOut
}

const owner = "u1"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func todo(id string, text string, done bool, offset int) models.Todo {
	return models.Todo{
		ID:        models.TodoID(id),
		OwnerID:   owner,
		CreatedAt: t0.Add(time.Duration(offset) * time.Second),
		Text:      text,
		Done:      done,
	}
}

func testEnv(store *fakeStore, auth *fakeAuth) Environment {
	return Environment{
		Auth:    auth,
		Store:   func(models.Session) TodoStore { return store },
		Timeout: time.Second,
	}
}

// run executes a non-blocking command and returns its message.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	return cmd()
}

func TestAttachListenerKeepsAtMostOneSubscription(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)

	l := NewTodoList(owner, store)
	l, first := l.Update(AttachListener{}, env)
	l, second := l.Update(AttachListener{}, env)

	// Complete out of order: the newer attach lands first.
	secondMsg := run(t, second)
	firstMsg := run(t, first)
	l, _ = l.Update(secondMsg, env)
	l, _ = l.Update(firstMsg, env)

	if got := store.live(); got != 1 {
		t.Fatalf("live subscriptions = %d, want 1", got)
	}
	// subs[0] came from the newer attach, subs[1] from the stale one.
	if !store.subs[1].closed {
		t.Error("stale subscription should be closed on arrival")
	}
	if store.subs[0].closed {
		t.Error("current subscription should stay open")
	}

	// A third attach releases the current one synchronously.
	l, third := l.Update(AttachListener{}, env)
	if store.live() != 0 {
		t.Fatalf("re-attach should close the current subscription first")
	}
	l, _ = l.Update(run(t, third), env)
	if store.live() != 1 || !l.Listening {
		t.Fatalf("live = %d listening = %v", store.live(), l.Listening)
	}
}

func TestReattachCancelsPendingSubscribe(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)

	l := NewTodoList(owner, store)
	l, first := l.Update(AttachListener{}, env)
	l, second := l.Update(AttachListener{}, env)

	// The replaced attach reaches the store after its replacement.
	l, _ = l.Update(run(t, second), env)
	l, _ = l.Update(run(t, first), env)

	if !errors.Is(store.subCtxs[1], context.Canceled) {
		t.Fatalf("replaced subscribe ctx err = %v, want canceled", store.subCtxs[1])
	}
	if store.subCtxs[0] != nil {
		t.Fatalf("current subscribe ctx err = %v", store.subCtxs[0])
	}
	if !l.Listening || store.live() != 1 {
		t.Fatalf("listening = %v live = %d", l.Listening, store.live())
	}

	// Detach abandons a subscribe that has not started yet.
	l, pending := l.Update(AttachListener{}, env)
	l, _ = l.Update(DetachListener{}, env)
	run(t, pending)
	if !errors.Is(store.subCtxs[2], context.Canceled) {
		t.Fatalf("detached subscribe ctx err = %v", store.subCtxs[2])
	}
}

func TestListenerDeliversSnapshots(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)

	l, cmd := l.Update(AttachListener{}, env)
	l, wait := l.Update(run(t, cmd), env)

	sub := store.subs[0]
	sub.ch <- models.Snapshot{Todos: []models.Todo{todo("a", "x", false, 0)}}
	l, wait = l.Update(run(t, wait), env)
	if len(l.Todos) != 1 || !l.Loaded {
		t.Fatalf("todos = %v loaded = %v", l.Todos, l.Loaded)
	}

	sub.ch <- models.Snapshot{Err: apperr.Store(apperr.Serialization, "listen", nil)}
	l, wait = l.Update(run(t, wait), env)
	if l.Err == nil || l.Err.Kind != apperr.Serialization {
		t.Fatalf("err = %v", l.Err)
	}
	if len(l.Todos) != 1 {
		t.Error("snapshot failure must keep the list")
	}

	sub.Close()
	l, next := l.Update(run(t, wait), env)
	if l.Listening {
		t.Error("ended stream should stop listening")
	}
	if next != nil {
		t.Error("no further wait after the stream ended")
	}
}

func TestStaleListenerEventsDropped(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)

	l, cmd := l.Update(AttachListener{}, env)
	l, wait := l.Update(run(t, cmd), env)
	oldSub := store.subs[0]
	oldSub.ch <- models.Snapshot{Todos: []models.Todo{todo("stale", "x", false, 0)}}

	l, cmd = l.Update(AttachListener{}, env)
	l, _ = l.Update(run(t, cmd), env)

	// The old wait was already in flight and reads the buffered snapshot.
	l, next := l.Update(run(t, wait), env)
	if len(l.Todos) != 0 {
		t.Fatalf("stale snapshot applied: %v", l.Todos)
	}
	if next != nil {
		t.Error("stale event must not schedule another wait")
	}
}

func TestSubscribeFailureRecorded(t *testing.T) {
	store := &fakeStore{subErr: apperr.Store(apperr.NetworkUnavailable, "subscribe", nil)}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)

	l, cmd := l.Update(AttachListener{}, env)
	l, _ = l.Update(run(t, cmd), env)
	if l.Listening {
		t.Error("should not be listening")
	}
	if !errors.Is(l.Err, &apperr.Error{Kind: apperr.NetworkUnavailable}) {
		t.Fatalf("err = %v", l.Err)
	}
}

func TestSnapshotOverwriteIdempotent(t *testing.T) {
	env := testEnv(&fakeStore{}, nil)
	list := []models.Todo{todo("b", "two", true, 1), todo("a", "one", false, 0)}

	l := NewTodoList(owner, nil)
	l, _ = l.Update(SnapshotReceived{Todos: list}, env)
	once := l
	l, _ = l.Update(SnapshotReceived{Todos: list}, env)

	if len(l.Todos) != len(once.Todos) {
		t.Fatalf("len = %d, want %d", len(l.Todos), len(once.Todos))
	}
	for i := range l.Todos {
		if !l.Todos[i].Equal(once.Todos[i]) {
			t.Errorf("todo %d = %+v, want %+v", i, l.Todos[i], once.Todos[i])
		}
	}
	if l.Todos[0].ID != "a" {
		t.Errorf("list should be ordered by creation time, got %v first", l.Todos[0].ID)
	}

	// Never merged: a shorter snapshot replaces the list.
	l, _ = l.Update(SnapshotReceived{Todos: list[:1]}, env)
	if len(l.Todos) != 1 || l.Todos[0].ID != "b" {
		t.Errorf("todos = %v", l.Todos)
	}
}

func TestSnapshotFiltersForeignOwners(t *testing.T) {
	env := testEnv(&fakeStore{}, nil)
	foreign := todo("x", "not mine", false, 0)
	foreign.OwnerID = "someone-else"

	l := NewTodoList(owner, nil)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{foreign, todo("a", "mine", false, 1)}}, env)

	for _, td := range l.Todos {
		if td.OwnerID != owner {
			t.Fatalf("foreign todo in list: %+v", td)
		}
	}
	if len(l.Todos) != 1 {
		t.Errorf("todos = %v", l.Todos)
	}
}

func TestWriteThroughConverges(t *testing.T) {
	tests := []struct {
		name  string
		msg   tea.Msg
		check func(models.Todo) bool
	}{
		{"edit text", ItemEdited{ID: "a", Field: models.FieldText, Value: "milk"}, func(td models.Todo) bool { return td.Text == "milk" }},
		{"edit done", ItemEdited{ID: "a", Field: models.FieldDone, Value: true}, func(td models.Todo) bool { return td.Done }},
		{"toggle", ItemToggleDone{ID: "a"}, func(td models.Todo) bool { return td.Done }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			env := testEnv(store, nil)
			l := NewTodoList(owner, store)
			l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "Untitled", false, 0)}}, env)

			l, cmd := l.Update(tt.msg, env)
			if !tt.check(l.Todos[0]) {
				t.Fatalf("local edit not applied: %+v", l.Todos[0])
			}
			if _, ok := run(t, cmd).(TodoUpdated); !ok {
				t.Fatal("expected TodoUpdated")
			}
			if len(store.updates) != 1 || !store.updates[0].Equal(l.Todos[0]) {
				t.Fatalf("update sent %+v, local %+v", store.updates, l.Todos[0])
			}

			// The store echoes the edit back.
			l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{store.updates[0]}}, env)
			if !tt.check(l.Todos[0]) {
				t.Errorf("did not converge: %+v", l.Todos[0])
			}
		})
	}
}

func TestEditDoesNotAliasPreviousState(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", false, 0)}}, env)

	before := l
	l, _ = l.Update(ItemToggleDone{ID: "a"}, env)
	if before.Todos[0].Done {
		t.Error("previous state was mutated")
	}
	if !l.Todos[0].Done {
		t.Error("new state missing edit")
	}
}

func TestItemActionsIgnoreUnknownIDs(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", false, 0)}}, env)

	for _, msg := range []tea.Msg{
		ItemEdited{ID: "nope", Field: models.FieldText, Value: "y"},
		ItemToggleDone{ID: "nope"},
		ItemDeleteRequested{ID: "nope"},
	} {
		var cmd tea.Cmd
		l, cmd = l.Update(msg, env)
		if cmd != nil {
			t.Errorf("%T on unknown id returned a command", msg)
		}
	}
}

func TestInvalidEditRecordsError(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", false, 0)}}, env)

	l, cmd := l.Update(ItemEdited{ID: "a", Field: models.FieldDone, Value: "yes"}, env)
	if cmd != nil {
		t.Error("invalid edit must not write")
	}
	if l.Err == nil || !errors.Is(l.Err, models.ErrInvalidEdit) {
		t.Fatalf("err = %v", l.Err)
	}
	if l.Todos[0].Done {
		t.Error("invalid edit applied")
	}
}

func TestDeleteRequestedWaitsForSnapshot(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", false, 0)}}, env)

	l, cmd := l.Update(ItemDeleteRequested{ID: "a"}, env)
	if len(l.Todos) != 1 {
		t.Fatal("delete must not remove locally")
	}
	if msg, ok := run(t, cmd).(TodoDeleted); !ok || msg.ID != "a" {
		t.Fatalf("msg = %#v", msg)
	}
	if len(store.deletes) != 1 || store.deletes[0].ID != "a" {
		t.Fatalf("deletes = %v", store.deletes)
	}
}

func TestClearCompletedNeedsPrompt(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", true, 0)}}, env)

	l, cmd := l.Update(ClearCompletedConfirmed{}, env)
	if cmd != nil {
		t.Fatal("confirm without prompt must do nothing")
	}

	l, _ = l.Update(ClearCompletedRequested{}, env)
	l, _ = l.Update(DismissPrompt{}, env)
	if l.Confirm != nil {
		t.Fatal("dismiss should clear the prompt")
	}
	if _, cmd = l.Update(ClearCompletedConfirmed{}, env); cmd != nil {
		t.Fatal("confirm after dismiss must do nothing")
	}
}

func TestClearCompletedPartialFailure(t *testing.T) {
	netErr := apperr.Store(apperr.NetworkUnavailable, "delete", nil)
	store := &fakeStore{batchErr: netErr}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("a", "x", true, 0)}}, env)
	l, _ = l.Update(ClearCompletedRequested{}, env)

	l, cmd := l.Update(ClearCompletedConfirmed{}, env)
	msg := run(t, cmd).(CompletedCleared)
	if len(msg.Result.Failed()) != 1 {
		t.Fatalf("outcomes = %+v", msg.Result)
	}
	l, _ = l.Update(msg, env)
	if !errors.Is(l.Err, &apperr.Error{Kind: apperr.NetworkUnavailable}) {
		t.Fatalf("err = %v", l.Err)
	}

	l, _ = l.Update(DismissError{}, env)
	if l.Err != nil {
		t.Error("dismiss should clear the error")
	}
}

func TestCreateFailure(t *testing.T) {
	store := &fakeStore{createErr: apperr.Store(apperr.Serialization, "create", nil)}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)

	l, cmd := l.Update(CreateTodo{}, env)
	l, _ = l.Update(run(t, cmd), env)
	if l.Err == nil || l.Err.Kind != apperr.Serialization || l.Err.Op != "create" {
		t.Fatalf("err = %+v", l.Err)
	}
}

// sign in anonymously, attach, [] -> create -> t1 -> snapshot -> one item
func TestScenarioAnonymousCreate(t *testing.T) {
	t1 := todo("t1", "Untitled", false, 0)
	store := &fakeStore{created: t1}
	auth := &fakeAuth{session: models.Session{UserID: owner, Anonymous: true, Token: "tok"}}
	env := testEnv(store, auth)

	s := NewSession()
	s, cmd := s.Update(SignInRequested{Method: MethodAnonymous}, env)
	if !s.Unauth.Pending {
		t.Fatal("expected pending sign in")
	}
	s, cmd = s.Update(run(t, cmd), env)
	if !s.Authenticated() {
		t.Fatalf("not authenticated: %+v", s.Unauth)
	}
	if _, ok := run(t, cmd).(AttachListener); !ok {
		t.Fatal("sign in must issue AttachListener")
	}
	s, cmd = s.Update(AttachListener{}, env)
	s, _ = s.Update(run(t, cmd), env)
	if !s.Authed.List.Listening || store.live() != 1 {
		t.Fatal("listener not attached")
	}

	s, _ = s.Update(SnapshotReceived{Todos: []models.Todo{}}, env)
	s, cmd = s.Update(CreateTodo{}, env)
	if len(s.Authed.List.Todos) != 0 {
		t.Fatal("create must not insert locally")
	}
	s, _ = s.Update(run(t, cmd), env)
	if s.Authed.List.LastCreated != "t1" {
		t.Fatalf("last created = %q", s.Authed.List.LastCreated)
	}
	if len(store.drafts) != 1 || store.drafts[0] != models.NewDraft() {
		t.Fatalf("drafts = %v", store.drafts)
	}

	s, _ = s.Update(SnapshotReceived{Todos: []models.Todo{t1}}, env)
	got := s.Authed.List.Todos
	if len(got) != 1 || got[0].ID != "t1" || got[0].Text != "Untitled" || got[0].Done {
		t.Fatalf("todos = %+v", got)
	}
}

// toggle t1 -> update(done=true) fails -> error set, done stays true
func TestScenarioToggleFailureNoRollback(t *testing.T) {
	store := &fakeStore{updateErr: apperr.Store(apperr.NetworkUnavailable, "update", nil)}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("t1", "Untitled", false, 0)}}, env)

	l, cmd := l.Update(ItemToggleDone{ID: "t1"}, env)
	l, _ = l.Update(run(t, cmd), env)

	want := todo("t1", "Untitled", true, 0)
	if len(store.updates) != 1 || !store.updates[0].Equal(want) {
		t.Fatalf("updates = %+v", store.updates)
	}
	if l.Err == nil || l.Err.Kind != apperr.NetworkUnavailable {
		t.Fatalf("err = %v", l.Err)
	}
	if !l.Todos[0].Done {
		t.Fatal("failed write must not roll back")
	}

	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{todo("t1", "Untitled", false, 0)}}, env)
	if l.Todos[0].Done {
		t.Error("next snapshot should correct the local value")
	}
}

// clear completed -> prompt -> confirm -> DeleteMany(exactly done items)
func TestScenarioClearCompleted(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{
		todo("a", "one", true, 0),
		todo("b", "two", false, 1),
		todo("c", "three", true, 2),
	}}, env)

	l, cmd := l.Update(ClearCompletedRequested{}, env)
	if cmd != nil {
		t.Fatal("request must only prompt")
	}
	if l.Confirm == nil || l.Confirm.Kind != PromptClearCompleted || l.Confirm.Count != 2 {
		t.Fatalf("confirm = %+v", l.Confirm)
	}

	l, cmd = l.Update(ClearCompletedConfirmed{}, env)
	if l.Confirm != nil {
		t.Error("confirm should clear the prompt")
	}
	l, _ = l.Update(run(t, cmd), env)

	if len(store.batches) != 1 {
		t.Fatalf("batches = %v", store.batches)
	}
	batch := store.batches[0]
	if len(batch) != 2 || batch[0].ID != "a" || batch[1].ID != "c" {
		t.Fatalf("batch = %+v", batch)
	}
	if l.Err != nil {
		t.Errorf("err = %v", l.Err)
	}
}

func TestSignInFailureStaysUnauthenticated(t *testing.T) {
	auth := &fakeAuth{err: apperr.Auth(apperr.InvalidCredentials, "password", nil)}
	env := testEnv(&fakeStore{}, auth)

	s := NewSession()
	s, _ = s.Update(EmailChanged{Value: "a@b.co"}, env)
	s, _ = s.Update(PasswordChanged{Value: "hunter22"}, env)
	s, cmd := s.Update(SignInRequested{Method: MethodPassword}, env)

	// A second request while pending is ignored.
	if _, dup := s.Update(SignInRequested{Method: MethodPassword}, env); dup != nil {
		t.Error("duplicate sign in while pending")
	}

	s, _ = s.Update(run(t, cmd), env)
	if s.Authenticated() || s.Unauth.Pending {
		t.Fatalf("state = %+v", s)
	}
	if s.Unauth.Err == nil || s.Unauth.Err.Kind != apperr.InvalidCredentials {
		t.Fatalf("err = %v", s.Unauth.Err)
	}
	if auth.lastEmail != "a@b.co" {
		t.Errorf("email = %q", auth.lastEmail)
	}
	if s.Unauth.Email != "a@b.co" {
		t.Error("failed sign in should keep the email buffer")
	}
}

func TestSignInMethods(t *testing.T) {
	tests := []struct {
		method SignInMethod
		want   string
	}{
		{MethodAnonymous, "anonymous"},
		{MethodPassword, "password"},
		{MethodSignUp, "signup"},
		{MethodCredential, "credential"},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			auth := &fakeAuth{session: models.Session{UserID: owner}}
			env := testEnv(&fakeStore{}, auth)
			cred := models.ExternalCredential{IDToken: "jwt", RawNonce: "n"}

			s, cmd := NewSession().Update(SignInRequested{Method: tt.method, Credential: cred}, env)
			s, _ = s.Update(run(t, cmd), env)
			if !s.Authenticated() {
				t.Fatal("expected authenticated")
			}
			if len(auth.calls) != 1 || auth.calls[0] != tt.want {
				t.Fatalf("calls = %v", auth.calls)
			}
			if tt.method == MethodCredential && auth.lastCred != cred {
				t.Errorf("credential = %+v", auth.lastCred)
			}
		})
	}
}

func TestSignOutReleasesSubscription(t *testing.T) {
	store := &fakeStore{}
	auth := &fakeAuth{signOut: apperr.Auth(apperr.NetworkUnavailable, "sign_out", nil)}
	env := testEnv(store, auth)
	session := models.Session{UserID: owner, Token: "tok"}

	s, cmd := NewSession().Update(Restore{Session: session}, env)
	s, cmd = s.Update(run(t, cmd), env)
	s, _ = s.Update(run(t, cmd), env)
	if store.live() != 1 {
		t.Fatalf("live = %d", store.live())
	}

	s, _ = s.Update(SignOutRequested{}, env)
	if s.Authed.Confirm == nil {
		t.Fatal("sign out should prompt")
	}
	s, _ = s.Update(SignOutCancelled{}, env)
	if !s.Authenticated() || s.Authed.Confirm != nil {
		t.Fatal("cancel should keep the session")
	}

	s, _ = s.Update(SignOutRequested{}, env)
	s, cmd = s.Update(SignOutConfirmed{}, env)
	if store.live() != 0 {
		t.Fatal("subscription must be released on sign out")
	}
	if !s.SignOutPending {
		t.Error("remote sign out should be pending")
	}
	if s.Authenticated() {
		t.Fatal("still authenticated")
	}

	s, _ = s.Update(run(t, cmd), env)
	if s.SignOutPending {
		t.Error("sign out still pending after result")
	}
	if len(auth.signOuts) != 1 || auth.signOuts[0].Token != "tok" {
		t.Fatalf("sign outs = %v", auth.signOuts)
	}
	if s.SignOutErr == nil || s.SignOutErr.Kind != apperr.NetworkUnavailable {
		t.Fatalf("sign out err = %v", s.SignOutErr)
	}
	if s.Authenticated() {
		t.Error("remote failure must not undo the local sign out")
	}
}

func TestAttachCompletingAfterSignOutIsClosed(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, &fakeAuth{})

	s, cmd := NewSession().Update(Restore{Session: models.Session{UserID: owner}}, env)
	s, subscribe := s.Update(run(t, cmd), env)
	s, _ = s.Update(SignOutConfirmed{}, env)

	s, _ = s.Update(run(t, subscribe), env)
	if store.live() != 0 {
		t.Fatal("late subscription leaked after sign out")
	}
}

func TestListActionsIgnoredWhenSignedOut(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, &fakeAuth{})
	s, cmd := NewSession().Update(CreateTodo{}, env)
	if cmd != nil || s.Authenticated() {
		t.Fatal("list action handled while signed out")
	}
}

func TestInFlightTracksWrites(t *testing.T) {
	a := todo("a", "milk", false, 0)
	b := todo("b", "eggs", true, 1)
	store := &fakeStore{created: todo("c", "bread", false, 2), updateErr: apperr.Store(apperr.NetworkUnavailable, "update", nil)}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{a, b}}, env)

	l, create := l.Update(CreateTodo{Text: "bread"}, env)
	l, toggle := l.Update(ItemToggleDone{ID: "a"}, env)
	l, del := l.Update(ItemDeleteRequested{ID: "b"}, env)
	if l.InFlight != 3 {
		t.Fatalf("in flight = %d, want 3", l.InFlight)
	}

	// Results arrive in any order.
	l, _ = l.Update(run(t, del), env)
	l, _ = l.Update(run(t, toggle), env)
	l, _ = l.Update(run(t, create), env)
	if l.InFlight != 0 {
		t.Fatalf("in flight = %d after every result", l.InFlight)
	}
	if l.Err == nil || l.Err.Op != OpUpdate {
		t.Errorf("err = %+v", l.Err)
	}
	if len(store.drafts) != 1 || store.drafts[0].Text != "bread" {
		t.Errorf("drafts = %+v", store.drafts)
	}

	// A stray result never drives the count negative.
	l, _ = l.Update(TodoUpdated{ID: "a"}, env)
	if l.InFlight != 0 {
		t.Errorf("in flight = %d", l.InFlight)
	}
}

func TestClearRecordsBatch(t *testing.T) {
	store := &fakeStore{}
	env := testEnv(store, nil)
	l := NewTodoList(owner, store)
	l, _ = l.Update(SnapshotReceived{Todos: []models.Todo{
		todo("a", "x", true, 0), todo("b", "y", false, 1),
	}}, env)

	l, _ = l.Update(ClearCompletedRequested{}, env)
	l, cmd := l.Update(ClearCompletedConfirmed{}, env)
	if l.InFlight != 1 {
		t.Fatalf("in flight = %d", l.InFlight)
	}
	l, _ = l.Update(run(t, cmd), env)
	if l.InFlight != 0 {
		t.Fatalf("in flight = %d", l.InFlight)
	}
	if ids := l.LastCleared.Deleted(); len(ids) != 1 || ids[0] != "a" {
		t.Errorf("deleted = %v", ids)
	}
}
