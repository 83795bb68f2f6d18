package feature

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/todos/internal/apperr"
	"github.com/marcus/todos/internal/models"
)

// SignInMethod selects the sign in flow.
type SignInMethod int

const (
	MethodAnonymous SignInMethod = iota
	MethodPassword
	MethodSignUp
	MethodCredential
)

func (m SignInMethod) String() string {
	switch m {
	case MethodAnonymous:
		return "anonymous"
	case MethodPassword:
		return "password"
	case MethodSignUp:
		return "signup"
	case MethodCredential:
		return "credential"
	}
	return "unknown"
}

// Session actions.
type (
	EmailChanged    struct{ Value string }
	PasswordChanged struct{ Value string }
	// SignInRequested starts a sign in with the current email and password
	// buffers, or with Credential for MethodCredential.
	SignInRequested struct {
		Method     SignInMethod
		Credential models.ExternalCredential
	}
	SignInResult struct {
		Session models.Session
		Err     error
	}
	// Restore resumes a session persisted by an earlier run.
	Restore          struct{ Session models.Session }
	SignOutRequested struct{}
	SignOutCancelled struct{}
	SignOutConfirmed struct{}
	// SignOutResult reports the remote revocation. The local sign out has
	// already happened.
	SignOutResult struct{ Err error }
)

// UnauthenticatedState holds the sign in form.
type UnauthenticatedState struct {
	Email    string
	Password string
	Err      *apperr.Error
	Pending  bool
}

// AuthenticatedState holds the signed in session and its todo list.
type AuthenticatedState struct {
	Session models.Session
	List    TodoListState
	// Confirm is set while the sign out prompt is showing.
	Confirm *Prompt
}

// SessionState is the root state. Exactly one of the two halves is live:
// Authed is non-nil when signed in.
type SessionState struct {
	Unauth UnauthenticatedState
	Authed *AuthenticatedState
	// SignOutErr is the last failed remote sign out.
	SignOutErr *apperr.Error
	// SignOutPending is true until the remote sign out reports back.
	SignOutPending bool
}

// NewSession returns the signed out root state.
func NewSession() SessionState {
	return SessionState{}
}

// Authenticated reports whether a session is active.
func (s SessionState) Authenticated() bool { return s.Authed != nil }

// Update applies one message to the root state. Todo list messages are
// routed to the embedded list while signed in and dropped otherwise.
func (s SessionState) Update(msg tea.Msg, env Environment) (SessionState, tea.Cmd) {
	switch m := msg.(type) {
	case EmailChanged:
		if s.Authed == nil {
			s.Unauth.Email = m.Value
		}
		return s, nil

	case PasswordChanged:
		if s.Authed == nil {
			s.Unauth.Password = m.Value
		}
		return s, nil

	case SignInRequested:
		if s.Authed != nil || s.Unauth.Pending {
			return s, nil
		}
		s.Unauth.Pending = true
		s.Unauth.Err = nil
		return s, signIn(m, s.Unauth.Email, s.Unauth.Password, env)

	case SignInResult:
		if s.Authed != nil {
			return s, nil
		}
		s.Unauth.Pending = false
		if m.Err != nil {
			s.Unauth.Err = apperr.As(apperr.DomainAuth, "sign_in", m.Err)
			return s, nil
		}
		return s.enter(m.Session, env)

	case Restore:
		if s.Authed != nil {
			return s, nil
		}
		return s.enter(m.Session, env)

	case SignOutRequested:
		if s.Authed == nil {
			return s, nil
		}
		a := *s.Authed
		a.Confirm = &Prompt{Kind: PromptSignOut}
		s.Authed = &a
		return s, nil

	case SignOutCancelled:
		if s.Authed == nil {
			return s, nil
		}
		a := *s.Authed
		a.Confirm = nil
		s.Authed = &a
		return s, nil

	case SignOutConfirmed:
		if s.Authed == nil {
			return s, nil
		}
		// Release the subscription before the list is discarded.
		s.Authed.List.Update(DetachListener{}, env)
		session := s.Authed.Session
		s.Authed = nil
		s.Unauth = UnauthenticatedState{}
		s.SignOutPending = true
		slog.Info("signed out", "session", session)
		return s, signOut(session, env)

	case SignOutResult:
		s.SignOutPending = false
		if m.Err != nil {
			slog.Warn("remote sign out failed", "err", m.Err)
			s.SignOutErr = apperr.As(apperr.DomainAuth, "sign_out", m.Err)
		} else {
			s.SignOutErr = nil
		}
		return s, nil

	case listenerAttached:
		if s.Authed == nil {
			closeQuietly(m.sub)
			return s, nil
		}
	}

	if s.Authed == nil {
		return s, nil
	}
	a := *s.Authed
	var cmd tea.Cmd
	a.List, cmd = a.List.Update(msg, env)
	s.Authed = &a
	return s, cmd
}

// enter switches to the authenticated state with a fresh list and issues
// AttachListener.
func (s SessionState) enter(session models.Session, env Environment) (SessionState, tea.Cmd) {
	var store TodoStore
	if env.Store != nil {
		store = env.Store(session)
	}
	s.Authed = &AuthenticatedState{
		Session: session,
		List:    NewTodoList(session.UserID, store),
	}
	s.Unauth = UnauthenticatedState{}
	s.SignOutErr = nil
	slog.Info("signed in", "session", session)
	return s, func() tea.Msg { return AttachListener{} }
}

func signIn(req SignInRequested, email, password string, env Environment) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()

		var (
			session models.Session
			err     error
		)
		switch req.Method {
		case MethodAnonymous:
			session, err = env.Auth.SignInAnonymously(ctx)
		case MethodPassword:
			session, err = env.Auth.SignInWithPassword(ctx, email, password)
		case MethodSignUp:
			session, err = env.Auth.SignUp(ctx, email, password)
		case MethodCredential:
			session, err = env.Auth.SignInWithCredential(ctx, req.Credential)
		default:
			err = apperr.Auth(apperr.Unknown, "sign_in", nil)
		}
		return SignInResult{Session: session, Err: err}
	}
}

func signOut(session models.Session, env Environment) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := env.context()
		defer cancel()
		return SignOutResult{Err: env.Auth.SignOut(ctx, session)}
	}
}

// Reducer binds env to SessionState.Update for a pipeline.
func Reducer(env Environment) func(SessionState, tea.Msg) (SessionState, tea.Cmd) {
	return func(s SessionState, msg tea.Msg) (SessionState, tea.Cmd) {
		return s.Update(msg, env)
	}
}
