package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/todos/internal/realtime"
	"github.com/marcus/todos/internal/serverdb"
)

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	Hub     *realtime.Hub
	BaseURL string
	client  *http.Client
}

func testConfig() Config {
	return Config{
		ListenAddr:         ":0",
		DBDriver:           serverdb.DriverPure,
		AllowSignup:        true,
		LogFormat:          "text",
		RateLimitAuth:      100000,
		CredentialProvider: "test",
	}
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	store, err := serverdb.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hub := realtime.NewHub()
	srv, err := NewServer(cfg, store, hub)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.routes())

	t.Cleanup(func() {
		srv.cancel()
		srv.rateLimiter.Stop()
		httpSrv.Close()
		store.Close()
	})

	return &TestHarness{
		t:       t,
		Server:  srv,
		Store:   store,
		Hub:     hub,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
	}
}

// Do sends an HTTP request and returns the response. Caller closes the body
// unless using DoJSON or AssertError.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		rdr = &buf
	}

	req, err := http.NewRequest(method, h.BaseURL+path, rdr)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON sends a request, expects the given status and decodes the body into out.
func (h *TestHarness) DoJSON(method, path, token string, body any, wantStatus int, out any) {
	h.t.Helper()

	resp := h.Do(method, path, token, body)
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, respBody)
	}
	if out == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// AssertError checks status and error code of a failed request.
func (h *TestHarness) AssertError(resp *http.Response, wantStatus int, wantCode string) {
	h.t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, body)
	}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		h.t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != wantCode {
		h.t.Fatalf("expected error code %q, got %q (%s)", wantCode, er.Error.Code, er.Error.Message)
	}
}

// SignInAnonymous creates an anonymous account via the API.
func (h *TestHarness) SignInAnonymous() sessionResponse {
	h.t.Helper()
	var sess sessionResponse
	h.DoJSON("POST", "/v1/auth/anonymous", "", nil, http.StatusCreated, &sess)
	if sess.Token == "" || sess.UserID == "" {
		h.t.Fatalf("anonymous sign in returned %+v", sess)
	}
	return sess
}

// WebsocketURL rewrites an API path to a ws:// URL on the harness server.
func (h *TestHarness) WebsocketURL(path string) string {
	return "ws" + strings.TrimPrefix(h.BaseURL, "http") + path
}
