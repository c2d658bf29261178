package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Session is a named sequence of history entries.
type Session struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	Entries   int    `json:"entries"`
}

// CreateSession starts a new, empty session.
func (s *Store) CreateSession(ctx context.Context, name string) (Session, error) {
	sess := Session{
		ID:        s.tokens.Generate(),
		Name:      name,
		CreatedAt: s.now().UnixMilli(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, created_at)
		VALUES (?, ?, ?)
	`, sess.ID, sess.Name, sess.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session with id, or ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.created_at, COUNT(h.seq)
		FROM sessions s
		LEFT JOIN history_entries h ON h.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id
	`, id).Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.Entries)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %q: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %q: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns all sessions, oldest first.
//
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.created_at, COUNT(h.seq)
		FROM sessions s
		LEFT JOIN history_entries h ON h.session_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at ASC, s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.Entries); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and all of its entries.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete session %q: %w", id, ErrSessionNotFound)
	}
	return nil
}
