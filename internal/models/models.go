package models

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultTodoText is the text a new todo gets when none is given
const DefaultTodoText = "Untitled"

// TodoID identifies a persisted todo document
type TodoID string

// IsZero reports whether the id was never assigned by the store
func (id TodoID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

func (id TodoID) String() string { return string(id) }

// Field names an editable todo field
type Field string

const (
	FieldText Field = "text"
	FieldDone Field = "done"
)

// ErrInvalidEdit is returned when an edit names an unknown field or carries
// a value of the wrong type for the field
var ErrInvalidEdit = errors.New("invalid edit")

// Draft is a todo that has not been written to the store yet. It has no id,
// owner or timestamp; the store assigns those on create.
type Draft struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// NewDraft returns the draft used by the "add" action
func NewDraft() Draft {
	return Draft{Text: DefaultTodoText}
}

// Normalize fills in the default text for blank drafts
func (d Draft) Normalize() Draft {
	if strings.TrimSpace(d.Text) == "" {
		d.Text = DefaultTodoText
	}
	return d
}

// Todo is a persisted todo document
type Todo struct {
	ID        TodoID    `json:"id"`
	OwnerID   string    `json:"user_id"`
	CreatedAt time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
}

// Equal compares field by field, using time.Equal for the timestamp
func (t Todo) Equal(o Todo) bool {
	return t.ID == o.ID &&
		t.OwnerID == o.OwnerID &&
		t.CreatedAt.Equal(o.CreatedAt) &&
		t.Text == o.Text &&
		t.Done == o.Done
}

// Draft returns the editable part of the todo
func (t Todo) Draft() Draft {
	return Draft{Text: t.Text, Done: t.Done}
}

// With returns a copy of t with one field replaced. Text takes a string and
// done takes a bool.
func (t Todo) With(field Field, value any) (Todo, error) {
	switch field {
	case FieldText:
		s, ok := value.(string)
		if !ok {
			return t, fmt.Errorf("%w: text wants a string, got %T", ErrInvalidEdit, value)
		}
		t.Text = s
	case FieldDone:
		b, ok := value.(bool)
		if !ok {
			return t, fmt.Errorf("%w: done wants a bool, got %T", ErrInvalidEdit, value)
		}
		t.Done = b
	default:
		return t, fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, field)
	}
	return t, nil
}

// SortTodos orders todos by creation time, breaking ties by id
func SortTodos(todos []Todo) {
	slices.SortStableFunc(todos, func(a, b Todo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

// Completed returns the done todos in list order
func Completed(todos []Todo) []Todo {
	var out []Todo
	for _, t := range todos {
		if t.Done {
			out = append(out, t)
		}
	}
	return out
}

// Snapshot is one delivery from a todo subscription: either the full current
// list for the owner or the error that ended the stream
type Snapshot struct {
	Todos []Todo
	Err   error
}

// Session is an authenticated identity
type Session struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	Token     string `json:"token"`
	// ExpiresAt is zero when the server did not say.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// DisplayName is what the UI shows for the signed in user
func (s Session) DisplayName() string {
	switch {
	case s.Email != "":
		return s.Email
	case s.Anonymous:
		return "anonymous"
	default:
		return s.UserID
	}
}

// LogValue keeps the token out of log output
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", s.UserID),
		slog.Bool("anonymous", s.Anonymous),
	)
}

// ExternalCredential is an identity token minted by a third-party provider
// together with the raw nonce the client generated for the sign in attempt
type ExternalCredential struct {
	IDToken  string `json:"id_token"`
	RawNonce string `json:"nonce"`
}

// DeleteOutcome is the result of one delete inside a batch
type DeleteOutcome struct {
	ID  TodoID
	Err error
}

// BatchResult enumerates every item's outcome of a batch delete, in the
// order the items were given
type BatchResult struct {
	Outcomes []DeleteOutcome
}

// Failed returns the outcomes that carry an error
func (r BatchResult) Failed() []DeleteOutcome {
	var out []DeleteOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Deleted returns the ids that were removed
func (r BatchResult) Deleted() []TodoID {
	var out []TodoID
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.ID)
		}
	}
	return out
}
