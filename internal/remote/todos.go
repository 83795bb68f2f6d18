package remote

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/feature"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/syncclient"
)

// maxParallelDeletes bounds the fan-out of DeleteMany.
const maxParallelDeletes = 8

var (
	errNoID         = errors.New("todo has no id")
	errForeignOwner = errors.New("todo belongs to another owner")
	errSuperseded   = errors.New("superseded by a newer subscribe")
)

// Todos is the todo store for one signed in session.
type Todos struct {
	client  *syncclient.Client
	session models.Session
	reg     *Registry
}

// NewTodos returns a store acting as session. reg may be shared between
// stores; nil gets a private registry.
func NewTodos(client *syncclient.Client, session models.Session, reg *Registry) *Todos {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Todos{
		client:  client.WithToken(session.Token),
		session: session,
		reg:     reg,
	}
}

// Subscribe replaces any live subscription for ownerID with a new one. The
// previous subscription is closed before this returns. When a later Subscribe
// for the same owner starts while this one is dialing, the later one wins and
// this call fails with errSuperseded. A ctx cancelled before the call starts
// leaves the current subscription alone.
func (t *Todos) Subscribe(ctx context.Context, ownerID string) (feature.Subscription, error) {
	if ownerID != t.session.UserID {
		return nil, apperr.Store(apperr.NotFound, "subscribe", errForeignOwner)
	}
	ticket, prev, err := t.reg.begin(ctx, ownerID)
	if err != nil {
		return nil, classifyStore("subscribe", err)
	}
	if prev != nil {
		prev.Close()
	}

	stream, err := t.client.Listen(ctx)
	if err != nil {
		return nil, classifyStore("subscribe", err)
	}
	sub := newSubscription(ownerID, stream, t.reg)
	prev, ok := t.reg.put(sub, ticket)
	if !ok {
		sub.Close()
		return nil, apperr.Store(apperr.Unknown, "subscribe", errSuperseded)
	}
	if prev != nil {
		prev.Close()
	}
	return sub, nil
}

func (t *Todos) Create(ctx context.Context, ownerID string, draft models.Draft) (models.Todo, error) {
	if ownerID != t.session.UserID {
		return models.Todo{}, apperr.Store(apperr.NotFound, "create", errForeignOwner)
	}
	todo, err := t.client.CreateTodo(ctx, draft.Normalize())
	if err != nil {
		return models.Todo{}, classifyStore("create", err)
	}
	return todo, nil
}

func (t *Todos) Update(ctx context.Context, todo models.Todo) error {
	if err := t.check("update", todo); err != nil {
		return err
	}
	_, err := t.client.UpdateTodo(ctx, todo.ID, todo.Draft())
	return classifyStore("update", err)
}

func (t *Todos) Delete(ctx context.Context, todo models.Todo) error {
	if err := t.check("delete", todo); err != nil {
		return err
	}
	return classifyStore("delete", t.client.DeleteTodo(ctx, todo.ID))
}

// DeleteMany deletes every todo independently. The result lists each item's
// outcome in input order; the error is the first failed outcome in that order.
func (t *Todos) DeleteMany(ctx context.Context, todos []models.Todo) (models.BatchResult, error) {
	res := models.BatchResult{Outcomes: make([]models.DeleteOutcome, len(todos))}

	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for i, todo := range todos {
		g.Go(func() error {
			res.Outcomes[i] = models.DeleteOutcome{ID: todo.ID, Err: t.Delete(ctx, todo)}
			return nil
		})
	}
	g.Wait()
	for _, o := range res.Outcomes {
		if o.Err != nil {
			return res, o.Err
		}
	}
	return res, nil
}

// check refuses items the server would not accept for this session
// without sending anything.
func (t *Todos) check(op string, todo models.Todo) error {
	if todo.ID.IsZero() {
		return apperr.Store(apperr.NotFound, op, errNoID)
	}
	if todo.OwnerID != t.session.UserID {
		return apperr.Store(apperr.NotFound, op, errForeignOwner)
	}
	return nil
}

var (
	_ feature.TodoStore     = (*Todos)(nil)
	_ feature.Authenticator = (*Auth)(nil)
)
