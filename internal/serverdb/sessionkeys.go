package serverdb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	sessionKeyPrefix = "todos_"
	keyLength        = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// SessionKey is a stored bearer token record (without the plaintext secret).
type SessionKey struct {
	ID         string
	UserID     string
	KeyPrefix  string
	Name       string
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// IssueSessionKey creates a bearer token for the given user.
// Returns the plaintext token (shown once) and the stored record.
func (db *ServerDB) IssueSessionKey(userID, name string, expiresAt *time.Time) (string, *SessionKey, error) {
	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("user not found: %s", userID)
		}
		return "", nil, fmt.Errorf("check user: %w", err)
	}

	id, err := generateID("sk_")
	if err != nil {
		return "", nil, fmt.Errorf("generate session key id: %w", err)
	}

	secret := make([]byte, keyLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random key: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := sessionKeyPrefix + string(secret)
	prefix := string(secret[:8])

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO session_keys (id, user_id, key_hash, key_prefix, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, hashKey(plaintext), prefix, name, expiresAt, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert session key: %w", err)
	}

	return plaintext, &SessionKey{
		ID:        id,
		UserID:    userID,
		KeyPrefix: prefix,
		Name:      name,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// VerifySessionKey resolves a plaintext token to its record and user.
// Unknown and expired tokens return nil, nil, nil.
func (db *ServerDB) VerifySessionKey(plaintext string) (*SessionKey, *User, error) {
	keyHash := hashKey(plaintext)

	sk := &SessionKey{}
	u := &User{}
	var email sql.NullString
	err := db.conn.QueryRow(`
		SELECT sk.id, sk.user_id, sk.key_prefix, sk.name, sk.expires_at, sk.last_used_at, sk.created_at,
		       u.id, u.email, u.anonymous, u.provider, u.created_at, u.updated_at
		FROM session_keys sk
		JOIN users u ON u.id = sk.user_id
		WHERE sk.key_hash = ?
	`, keyHash).Scan(
		&sk.ID, &sk.UserID, &sk.KeyPrefix, &sk.Name, &sk.ExpiresAt, &sk.LastUsedAt, &sk.CreatedAt,
		&u.ID, &email, &u.Anonymous, &u.Provider, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		slog.Debug("session key not found", "key_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify session key: %w", err)
	}
	u.Email = email.String

	if sk.ExpiresAt != nil && sk.ExpiresAt.Before(time.Now().UTC()) {
		slog.Debug("session key expired", "key_id", sk.ID, "expires_at", sk.ExpiresAt)
		return nil, nil, nil
	}

	now := time.Now().UTC()
	if _, err := db.conn.Exec(`UPDATE session_keys SET last_used_at = ? WHERE id = ?`, now, sk.ID); err != nil {
		slog.Warn("update last_used_at", "key_id", sk.ID, "err", err)
	}
	sk.LastUsedAt = &now

	return sk, u, nil
}

// RevokeSessionKey deletes a session key, only if owned by the given user.
func (db *ServerDB) RevokeSessionKey(keyID, userID string) error {
	res, err := db.conn.Exec(`DELETE FROM session_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return fmt.Errorf("revoke session key: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupExpiredSessionKeys removes keys past their expiry.
func (db *ServerDB) CleanupExpiredSessionKeys() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM session_keys WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup session keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func hashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
