package serverdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmailTaken is returned when signing up with an email that already has an account
var ErrEmailTaken = errors.New("email already registered")

// User represents an account. Anonymous users have no email or password.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Anonymous       bool
	Provider        string
	ProviderSubject string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const userColumns = `id, email, password_hash, anonymous, provider, provider_subject, created_at, updated_at`

// CreateAnonymousUser inserts a user with no email or password.
func (db *ServerDB) CreateAnonymousUser() (*User, error) {
	u := &User{ID: uuid.NewString(), Anonymous: true}
	if err := db.insertUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// CreatePasswordUser inserts a user with the given email (lowercased) and
// an already hashed password.
func (db *ServerDB) CreatePasswordUser(email, passwordHash string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}

	existing, err := db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	u := &User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	if err := db.insertUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateExternalUser returns the user bound to a provider subject,
// creating it on first sign in.
func (db *ServerDB) GetOrCreateExternalUser(provider, subject, email string) (*User, bool, error) {
	if provider == "" || subject == "" {
		return nil, false, fmt.Errorf("provider and subject are required")
	}

	u, err := db.scanUser(db.conn.QueryRow(
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_subject = ?`, provider, subject,
	))
	if err != nil {
		return nil, false, fmt.Errorf("get external user: %w", err)
	}
	if u != nil {
		return u, false, nil
	}

	email = normalizeEmail(email)
	if email != "" {
		// The email may already belong to a password account; keep it
		// there and create the external identity without one.
		if other, err := db.GetUserByEmail(email); err != nil {
			return nil, false, err
		} else if other != nil {
			email = ""
		}
	}

	u = &User{ID: uuid.NewString(), Email: email, Provider: provider, ProviderSubject: subject}
	if err := db.insertUser(u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (db *ServerDB) GetUserByID(id string) (*User, error) {
	u, err := db.scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (db *ServerDB) GetUserByEmail(email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	u, err := db.scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE LOWER(email) = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// CountUsers returns the number of accounts.
func (db *ServerDB) CountUsers() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (db *ServerDB) insertUser(u *User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	var email any
	if u.Email != "" {
		email = u.Email
	}
	_, err := db.conn.Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, email, u.PasswordHash, u.Anonymous, u.Provider, u.ProviderSubject, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (db *ServerDB) scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	var email sql.NullString
	err := row.Scan(&u.ID, &email, &u.PasswordHash, &u.Anonymous, &u.Provider, &u.ProviderSubject, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
