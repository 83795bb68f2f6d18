package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/marcus/todos/internal/crypto"
	"github.com/marcus/todos/internal/serverdb"
)

// Sign in methods, used for auth events and metrics labels.
const (
	methodAnonymous  = "anonymous"
	methodPassword   = "password"
	methodSignup     = "signup"
	methodCredential = "credential"
)

// passwordRequest is the JSON body for POST /v1/auth/signup and /v1/auth/password.
type passwordRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=256"`
}

// credentialRequest is the JSON body for POST /v1/auth/credential.
type credentialRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	Nonce   string `json:"nonce" validate:"required"`
}

// sessionResponse is returned by every successful sign in.
type sessionResponse struct {
	UserID    string  `json:"user_id"`
	Email     string  `json:"email,omitempty"`
	Anonymous bool    `json:"anonymous"`
	Token     string  `json:"token,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// handleSignInAnonymous handles POST /v1/auth/anonymous.
func (s *Server) handleSignInAnonymous(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.CreateAnonymousUser()
	if err != nil {
		logFor(r.Context()).Error("create anonymous user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}
	s.issueSession(w, r, user, methodAnonymous, http.StatusCreated)
}

// handleSignUp handles POST /v1/auth/signup.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.config.AllowSignup {
		s.recordAuth(r, "", methodSignup, serverdb.AuthOutcomeRejected)
		writeError(w, http.StatusForbidden, ErrCodeSignupDisabled, "signups are disabled")
		return
	}

	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		logFor(r.Context()).Error("hash password", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}

	user, err := s.store.CreatePasswordUser(req.Email, hash)
	if errors.Is(err, serverdb.ErrEmailTaken) {
		s.recordAuth(r, "", methodSignup, serverdb.AuthOutcomeRejected)
		writeError(w, http.StatusConflict, ErrCodeEmailTaken, "an account with that email already exists")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("create password user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}
	s.issueSession(w, r, user, methodSignup, http.StatusCreated)
}

// handleSignInPassword handles POST /v1/auth/password.
func (s *Server) handleSignInPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		logFor(r.Context()).Error("get user by email", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to look up user")
		return
	}

	ok := false
	if user != nil && user.PasswordHash != "" {
		ok, err = crypto.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			logFor(r.Context()).Error("verify password", "uid", user.ID, "err", err)
			ok = false
		}
	}
	if !ok {
		uid := ""
		if user != nil {
			uid = user.ID
		}
		s.recordAuth(r, uid, methodPassword, serverdb.AuthOutcomeRejected)
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
		return
	}
	s.issueSession(w, r, user, methodPassword, http.StatusOK)
}

// handleSignInCredential handles POST /v1/auth/credential.
func (s *Server) handleSignInCredential(w http.ResponseWriter, r *http.Request) {
	if !s.verifier.Enabled() {
		s.recordAuth(r, "", methodCredential, serverdb.AuthOutcomeRejected)
		writeError(w, http.StatusForbidden, ErrCodeProviderRejected, errCredentialDisabled.Error())
		return
	}

	var req credentialRequest
	if !decodeBody(w, r, &req) {
		return
	}

	claims, err := s.verifier.Verify(req.IDToken, req.Nonce)
	if err != nil {
		logFor(r.Context()).Info("credential rejected", "err", err)
		s.recordAuth(r, "", methodCredential, serverdb.AuthOutcomeRejected)
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "identity token rejected")
		return
	}

	user, created, err := s.store.GetOrCreateExternalUser(s.verifier.Provider(), claims.Subject, claims.Email)
	if err != nil {
		logFor(r.Context()).Error("resolve external user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to resolve user")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.issueSession(w, r, user, methodCredential, status)
}

// handleSignOut handles POST /v1/auth/signout and revokes the calling token.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if err := s.store.RevokeSessionKey(user.KeyID, user.UserID); err != nil {
		if errors.Is(err, serverdb.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "session already revoked")
			return
		}
		logFor(r.Context()).Error("revoke session key", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to sign out")
		return
	}
	s.recordAuth(r, user.UserID, "signout", serverdb.AuthOutcomeSignOut)
	w.WriteHeader(http.StatusNoContent)
}

// handleSession handles GET /v1/auth/session and describes the calling
// token's user. The token itself is not echoed.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		Anonymous: user.Anonymous,
	})
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, user *serverdb.User, method string, status int) {
	var expiresAt *time.Time
	if s.config.SessionTTL > 0 {
		t := time.Now().UTC().Add(s.config.SessionTTL)
		expiresAt = &t
	}

	token, sk, err := s.store.IssueSessionKey(user.ID, method, expiresAt)
	if err != nil {
		logFor(r.Context()).Error("issue session key", "uid", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to issue session")
		return
	}
	s.recordAuth(r, user.ID, method, serverdb.AuthOutcomeSuccess)
	logFor(r.Context()).Info("signed in", "uid", user.ID, "method", method, "key_id", sk.ID)

	resp := sessionResponse{
		UserID:    user.ID,
		Email:     user.Email,
		Anonymous: user.Anonymous,
		Token:     token,
	}
	if sk.ExpiresAt != nil {
		v := sk.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &v
	}
	writeJSON(w, status, resp)
}

// recordAuth writes an auth event and bumps the sign in counter. Failures
// are logged and never fail the request.
func (s *Server) recordAuth(r *http.Request, userID, method, outcome string) {
	s.metrics.RecordSignIn(method, outcome)
	if err := s.store.InsertAuthEvent(userID, method, outcome); err != nil {
		logFor(r.Context()).Warn("insert auth event", "err", err)
	}
}
