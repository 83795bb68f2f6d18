package serverdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/todos/internal/models"
)

const todoColumns = `id, user_id, text, done, created_at`

// ListTodos returns the owner's todos ordered by creation time.
func (db *ServerDB) ListTodos(ownerID string) ([]models.Todo, error) {
	rows, err := db.conn.Query(
		`SELECT `+todoColumns+` FROM todos WHERE user_id = ? ORDER BY created_at, id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		var t models.Todo
		var id string
		if err := rows.Scan(&id, &t.OwnerID, &t.Text, &t.Done, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		t.ID = models.TodoID(id)
		t.CreatedAt = t.CreatedAt.UTC()
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: iterate: %w", err)
	}
	return todos, nil
}

// GetTodo returns one of the owner's todos, or ErrNotFound.
func (db *ServerDB) GetTodo(ownerID string, id models.TodoID) (models.Todo, error) {
	var t models.Todo
	var rawID string
	err := db.conn.QueryRow(
		`SELECT `+todoColumns+` FROM todos WHERE id = ? AND user_id = ?`, string(id), ownerID,
	).Scan(&rawID, &t.OwnerID, &t.Text, &t.Done, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Todo{}, ErrNotFound
	}
	if err != nil {
		return models.Todo{}, fmt.Errorf("get todo: %w", err)
	}
	t.ID = models.TodoID(rawID)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// CreateTodo stores a draft for the owner and returns the persisted todo.
// The id and timestamp are assigned here.
func (db *ServerDB) CreateTodo(ownerID string, d models.Draft) (models.Todo, error) {
	if strings.TrimSpace(ownerID) == "" {
		return models.Todo{}, fmt.Errorf("owner is required")
	}
	d = d.Normalize()

	now := time.Now().UTC().Truncate(time.Microsecond)
	t := models.Todo{
		ID:        models.TodoID(uuid.NewString()),
		OwnerID:   ownerID,
		CreatedAt: now,
		Text:      d.Text,
		Done:      d.Done,
	}
	_, err := db.conn.Exec(
		`INSERT INTO todos (id, user_id, text, done, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(t.ID), ownerID, t.Text, t.Done, now, now,
	)
	if err != nil {
		return models.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	return t, nil
}

// UpdateTodo overwrites the editable fields of an existing todo.
// Returns ErrNotFound if the todo does not exist or belongs to someone else.
func (db *ServerDB) UpdateTodo(ownerID string, id models.TodoID, d models.Draft) (models.Todo, error) {
	res, err := db.conn.Exec(
		`UPDATE todos SET text = ?, done = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		d.Text, d.Done, time.Now().UTC(), string(id), ownerID,
	)
	if err != nil {
		return models.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Todo{}, ErrNotFound
	}
	return db.GetTodo(ownerID, id)
}

// DeleteTodo removes one of the owner's todos.
// Returns ErrNotFound if the todo does not exist or belongs to someone else.
func (db *ServerDB) DeleteTodo(ownerID string, id models.TodoID) error {
	res, err := db.conn.Exec(`DELETE FROM todos WHERE id = ? AND user_id = ?`, string(id), ownerID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
