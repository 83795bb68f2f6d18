package syncclient

import (
	"context"
	"net/url"

	"github.com/marcus/todos/internal/models"
)

// TodoList is the body of GET /v1/todos and of listen frames.
type TodoList struct {
	Todos []models.Todo `json:"todos"`
}

type todoBody struct {
	Text *string `json:"text"`
	Done bool    `json:"done"`
}

func bodyFor(d models.Draft) todoBody {
	text := d.Text
	return todoBody{Text: &text, Done: d.Done}
}

// ListTodos fetches the caller's todos once.
func (c *Client) ListTodos(ctx context.Context) ([]models.Todo, error) {
	var resp TodoList
	if err := c.do(ctx, "GET", "/v1/todos", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Todos == nil {
		return nil, ErrMalformed
	}
	return resp.Todos, nil
}

// CreateTodo stores a draft and returns the persisted todo.
func (c *Client) CreateTodo(ctx context.Context, d models.Draft) (models.Todo, error) {
	var t models.Todo
	if err := c.do(ctx, "POST", "/v1/todos", bodyFor(d), &t); err != nil {
		return models.Todo{}, err
	}
	if t.ID.IsZero() {
		return models.Todo{}, ErrMalformed
	}
	return t, nil
}

// UpdateTodo overwrites the editable fields of a todo.
func (c *Client) UpdateTodo(ctx context.Context, id models.TodoID, d models.Draft) (models.Todo, error) {
	var t models.Todo
	if err := c.do(ctx, "PUT", "/v1/todos/"+url.PathEscape(string(id)), bodyFor(d), &t); err != nil {
		return models.Todo{}, err
	}
	return t, nil
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, id models.TodoID) error {
	return c.do(ctx, "DELETE", "/v1/todos/"+url.PathEscape(string(id)), nil, nil)
}
