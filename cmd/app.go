package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/todos/internal/config"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/pipeline"
	"github.com/marcus/todos/internal/remote"
	"github.com/marcus/todos/internal/syncclient"
)

var errNotSignedIn = errors.New(`not signed in: run "todos auth anonymous" or "todos auth login"`)

// app wires the remote adapters for one command invocation.
type app struct {
	env    config.Env
	server string
	client *syncclient.Client
	auth   *remote.Auth
	reg    *remote.Registry
}

func newApp() (*app, error) {
	e, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		e.ServerURL = serverURL
	}
	server := config.ServerURL(e)
	client := syncclient.New(server, "")
	return &app{
		env:    e,
		server: server,
		client: client,
		auth:   remote.NewAuth(client),
		reg:    remote.NewRegistry(),
	}, nil
}

func (a *app) environment() feature.Environment {
	return feature.Environment{
		Auth: a.auth,
		Store: func(s models.Session) feature.TodoStore {
			return remote.NewTodos(a.client, s, a.reg)
		},
		Timeout: a.env.Timeout,
	}
}

// context bounds a whole command.
func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*a.env.Timeout)
}

// session resolves who the command runs as: TODOS_TOKEN first, then the
// stored sign in.
func (a *app) session(ctx context.Context) (models.Session, error) {
	if a.env.Token != "" {
		resp, err := a.client.WithToken(a.env.Token).CurrentSession(ctx)
		if err != nil {
			return models.Session{}, fmt.Errorf("TODOS_TOKEN: %w", err)
		}
		return resp.Session(), nil
	}

	creds, err := config.LoadAuth()
	if err != nil {
		return models.Session{}, err
	}
	if creds == nil || creds.Token == "" {
		return models.Session{}, errNotSignedIn
	}
	if creds.Expired(time.Now()) {
		return models.Session{}, fmt.Errorf("session expired: %w", errNotSignedIn)
	}
	return creds.Session(), nil
}

// saveSession persists s for later commands. Nil clears it.
func (a *app) saveSession(s *models.Session) error {
	if s == nil {
		return config.ClearAuth()
	}
	creds := &config.AuthCredentials{
		Token:     s.Token,
		UserID:    s.UserID,
		Email:     s.Email,
		Anonymous: s.Anonymous,
		ServerURL: a.server,
	}
	if !s.ExpiresAt.IsZero() {
		creds.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return config.SaveAuth(creds)
}

// run starts the session pipeline. The returned stop releases any
// subscription and ends the pipeline.
func (a *app) run(ctx context.Context) (*pipeline.Store[feature.SessionState], func()) {
	st := pipeline.New(feature.NewSession(), feature.Reducer(a.environment()))
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		st.Run(runCtx)
	}()
	return st, func() {
		detachCtx, detachCancel := context.WithTimeout(context.Background(), time.Second)
		st.Send(detachCtx, feature.DetachListener{})
		detachCancel()
		cancel()
		<-done
	}
}

// openList restores the session and waits for the first snapshot.
func (a *app) openList(ctx context.Context) (*pipeline.Store[feature.SessionState], func(), error) {
	session, err := a.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	st, stop := a.run(ctx)
	st.Dispatch(feature.Restore{Session: session})
	s, err := st.WaitFor(ctx, func(s feature.SessionState) bool {
		return s.Authed != nil && (s.Authed.List.Loaded || s.Authed.List.Err != nil)
	})
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("waiting for todos: %w", err)
	}
	if !s.Authed.List.Loaded {
		stop()
		return nil, nil, s.Authed.List.Err
	}
	return st, stop, nil
}

// apply sends one list action and waits for every write it started.
func apply(ctx context.Context, st *pipeline.Store[feature.SessionState], msg tea.Msg) (feature.TodoListState, error) {
	if _, err := st.Send(ctx, feature.DismissError{}); err != nil {
		return feature.TodoListState{}, err
	}
	if _, err := st.Send(ctx, msg); err != nil {
		return feature.TodoListState{}, err
	}
	s, err := st.WaitFor(ctx, func(s feature.SessionState) bool {
		return s.Authed == nil || s.Authed.List.InFlight == 0
	})
	if err != nil {
		return feature.TodoListState{}, fmt.Errorf("waiting for server: %w", err)
	}
	if s.Authed == nil {
		return feature.TodoListState{}, errNotSignedIn
	}
	l := s.Authed.List
	return l, writeErr(l)
}

// writeErr returns the list's error when it came from a write. A listener
// error can land while a write is in flight and is not that write's outcome.
func writeErr(l feature.TodoListState) error {
	if l.Err == nil || l.Err.Op == feature.OpSubscribe {
		return nil
	}
	return l.Err
}

// resolveID finds the todo whose id equals or starts with ref.
func resolveID(todos []models.Todo, ref string) (models.Todo, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.Todo{}, errors.New("todo id required")
	}
	var matches []models.Todo
	for _, t := range todos {
		if string(t.ID) == ref {
			return t, nil
		}
		if strings.HasPrefix(string(t.ID), ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return models.Todo{}, fmt.Errorf("no todo matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return models.Todo{}, fmt.Errorf("%q matches %d todos, use more of the id", ref, len(matches))
	}
}
