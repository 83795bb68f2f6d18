package remote

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/syncclient"
)

// Auth signs in against the todos server.
type Auth struct {
	client *syncclient.Client
}

// NewAuth returns an Auth adapter over client.
func NewAuth(client *syncclient.Client) *Auth {
	return &Auth{client: client}
}

func (a *Auth) SignInAnonymously(ctx context.Context) (models.Session, error) {
	resp, err := a.client.SignInAnonymously(ctx)
	return session(resp), classifyAuth("anonymous", err)
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (models.Session, error) {
	resp, err := a.client.SignInWithPassword(ctx, email, password)
	return session(resp), classifyAuth("password", err)
}

func (a *Auth) SignUp(ctx context.Context, email, password string) (models.Session, error) {
	resp, err := a.client.SignUp(ctx, email, password)
	return session(resp), classifyAuth("signup", err)
}

func (a *Auth) SignInWithCredential(ctx context.Context, cred models.ExternalCredential) (models.Session, error) {
	resp, err := a.client.SignInWithCredential(ctx, cred)
	return session(resp), classifyAuth("credential", err)
}

// SignOut revokes session's token. A token the server no longer knows is
// already signed out and is not an error.
func (a *Auth) SignOut(ctx context.Context, s models.Session) error {
	err := a.client.WithToken(s.Token).SignOut(ctx)
	if errors.Is(err, syncclient.ErrUnauthorized) {
		slog.Debug("sign out: token already revoked", "session", s)
		return nil
	}
	return classifyAuth("sign_out", err)
}

func session(resp *syncclient.SessionResponse) models.Session {
	if resp == nil {
		return models.Session{}
	}
	return resp.Session()
}
