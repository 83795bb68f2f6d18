package serverdb

import (
	"fmt"
	"time"
)

// AuthEvent is one sign in attempt.
type AuthEvent struct {
	ID        int64
	UserID    string
	Method    string
	Outcome   string
	CreatedAt time.Time
}

// Auth event outcomes.
const (
	AuthOutcomeSuccess  = "success"
	AuthOutcomeRejected = "rejected"
	AuthOutcomeSignOut  = "signout"
)

// InsertAuthEvent records a sign in attempt. userID is empty for rejected
// attempts that never resolved to an account.
func (db *ServerDB) InsertAuthEvent(userID, method, outcome string) error {
	_, err := db.conn.Exec(
		`INSERT INTO auth_events (user_id, method, outcome, created_at) VALUES (?, ?, ?, ?)`,
		userID, method, outcome, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

// ListAuthEvents returns the most recent events for a user, newest first.
func (db *ServerDB) ListAuthEvents(userID string, limit int) ([]AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT id, user_id, method, outcome, created_at FROM auth_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list auth events: %w", err)
	}
	defer rows.Close()

	var events []AuthEvent
	for rows.Next() {
		var e AuthEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Method, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupAuthEvents deletes auth events older than the given duration.
// Returns the number of rows deleted.
func (db *ServerDB) CleanupAuthEvents(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := db.conn.Exec(`DELETE FROM auth_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup auth events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
