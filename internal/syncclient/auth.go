package syncclient

import (
	"context"
	"time"

	"github.com/marcus/todos/internal/models"
)

// SessionResponse is returned by every sign in endpoint.
type SessionResponse struct {
	UserID    string  `json:"user_id"`
	Email     string  `json:"email,omitempty"`
	Anonymous bool    `json:"anonymous"`
	Token     string  `json:"token"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// Session converts the response to the client-side session type.
func (r *SessionResponse) Session() models.Session {
	s := models.Session{
		UserID:    r.UserID,
		Email:     r.Email,
		Anonymous: r.Anonymous,
		Token:     r.Token,
	}
	if r.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *r.ExpiresAt); err == nil {
			s.ExpiresAt = t
		}
	}
	return s
}

type passwordBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInAnonymously creates a fresh anonymous account.
func (c *Client) SignInAnonymously(ctx context.Context) (*SessionResponse, error) {
	return c.signIn(ctx, "/v1/auth/anonymous", nil)
}

// SignUp registers an email and password account.
func (c *Client) SignUp(ctx context.Context, email, password string) (*SessionResponse, error) {
	return c.signIn(ctx, "/v1/auth/signup", passwordBody{Email: email, Password: password})
}

// SignInWithPassword signs in to an existing email and password account.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*SessionResponse, error) {
	return c.signIn(ctx, "/v1/auth/password", passwordBody{Email: email, Password: password})
}

// SignInWithCredential exchanges a provider identity token and its raw nonce.
func (c *Client) SignInWithCredential(ctx context.Context, cred models.ExternalCredential) (*SessionResponse, error) {
	return c.signIn(ctx, "/v1/auth/credential", cred)
}

// SignOut revokes the client's token on the server.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, "POST", "/v1/auth/signout", nil, nil)
}

// CurrentSession asks the server who the client's token belongs to.
func (c *Client) CurrentSession(ctx context.Context) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, "GET", "/v1/auth/session", nil, &resp); err != nil {
		return nil, err
	}
	if resp.UserID == "" {
		return nil, ErrMalformed
	}
	resp.Token = c.Token
	return &resp, nil
}

func (c *Client) signIn(ctx context.Context, path string, body any) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.doNoAuth(ctx, "POST", path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.UserID == "" {
		return nil, ErrMalformed
	}
	return &resp, nil
}
