// Package feature holds the reducers for the session and the todo list.
// Every state change goes through Update; remote work is returned as a
// tea.Cmd whose result re-enters Update as a new message.
package feature

import (
	"context"
	"time"

	"github.com/marcus/todos/internal/models"
)

// DefaultTimeout bounds a single remote call when the environment sets none.
const DefaultTimeout = 15 * time.Second

// Authenticator signs principals in and out.
type Authenticator interface {
	SignInAnonymously(ctx context.Context) (models.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (models.Session, error)
	SignInWithCredential(ctx context.Context, cred models.ExternalCredential) (models.Session, error)
	SignUp(ctx context.Context, email, password string) (models.Session, error)
	SignOut(ctx context.Context, session models.Session) error
}

// Subscription is a live listener on an owner's todos. Snapshots is closed
// after Close or after the stream ends.
type Subscription interface {
	Snapshots() <-chan models.Snapshot
	Close() error
}

// TodoStore is the owner-scoped document store. ctx bounds how long
// Subscribe may take to establish the stream, not the stream's lifetime.
type TodoStore interface {
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
	Create(ctx context.Context, ownerID string, draft models.Draft) (models.Todo, error)
	Update(ctx context.Context, todo models.Todo) error
	Delete(ctx context.Context, todo models.Todo) error
	DeleteMany(ctx context.Context, todos []models.Todo) (models.BatchResult, error)
}

// Environment carries the collaborators the reducers call out to.
type Environment struct {
	Auth Authenticator
	// Store returns the todo store acting on behalf of session.
	Store   func(session models.Session) TodoStore
	Timeout time.Duration
}

func (e Environment) context() (context.Context, context.CancelFunc) {
	return e.contextFrom(context.Background())
}

// contextFrom bounds one remote call made on behalf of parent.
func (e Environment) contextFrom(parent context.Context) (context.Context, context.CancelFunc) {
	d := e.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(parent, d)
}
