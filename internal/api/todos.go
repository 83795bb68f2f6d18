package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marcus/todos/internal/models"
	"github.com/marcus/todos/internal/serverdb"
)

// todoRequest is the JSON body for POST /v1/todos and PUT /v1/todos/{id}.
// A missing text on create becomes the default text.
type todoRequest struct {
	Text *string `json:"text" validate:"omitempty,max=1000"`
	Done bool    `json:"done"`
}

func (req todoRequest) draft() models.Draft {
	d := models.Draft{Done: req.Done}
	if req.Text != nil {
		d.Text = *req.Text
	}
	return d
}

// todoListResponse is the body of GET /v1/todos and of listen snapshot frames.
type todoListResponse struct {
	Todos []models.Todo `json:"todos"`
}

// handleListTodos handles GET /v1/todos.
func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	todos, err := s.store.ListTodos(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("list todos", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list todos")
		return
	}
	writeJSON(w, http.StatusOK, todoListResponse{Todos: todos})
}

// handleCreateTodo handles POST /v1/todos.
func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())

	var req todoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	todo, err := s.store.CreateTodo(user.UserID, req.draft())
	if err != nil {
		logFor(r.Context()).Error("create todo", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create todo")
		return
	}

	s.afterWrite(r, user.UserID, "create")
	writeJSON(w, http.StatusCreated, todo)
}

// handleUpdateTodo handles PUT /v1/todos/{id}.
func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	id := models.TodoID(chi.URLParam(r, "id"))

	var req todoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d := req.draft()
	if req.Text == nil {
		current, err := s.store.GetTodo(user.UserID, id)
		if s.writeTodoErr(w, r, "get todo", err) {
			return
		}
		d.Text = current.Text
	}

	todo, err := s.store.UpdateTodo(user.UserID, id, d)
	if s.writeTodoErr(w, r, "update todo", err) {
		return
	}

	s.afterWrite(r, user.UserID, "update")
	writeJSON(w, http.StatusOK, todo)
}

// handleDeleteTodo handles DELETE /v1/todos/{id}.
func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	id := models.TodoID(chi.URLParam(r, "id"))

	if s.writeTodoErr(w, r, "delete todo", s.store.DeleteTodo(user.UserID, id)) {
		return
	}

	s.afterWrite(r, user.UserID, "delete")
	w.WriteHeader(http.StatusNoContent)
}

// writeTodoErr writes the response for a failed todo operation and reports
// whether it did.
func (s *Server) writeTodoErr(w http.ResponseWriter, r *http.Request, op string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, serverdb.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "todo not found")
	default:
		logFor(r.Context()).Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to "+op)
	}
	return true
}

func (s *Server) afterWrite(r *http.Request, ownerID, op string) {
	s.metrics.RecordTodoWrite(op)
	s.hub.Notify(r.Context(), ownerID)
}
