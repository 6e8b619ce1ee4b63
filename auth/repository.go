package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoSession signals the user has no live session.
var ErrNoSession = errors.New("auth: no session")

// SessionRepository stores one session row per user.
type SessionRepository interface {
	Upsert(ctx context.Context, session Session) error
	Get(ctx context.Context, userID int) (Session, error)
	Revoke(ctx context.Context, userID int) error
}

// PGSessionRepository implements SessionRepository backed by PostgreSQL.
type PGSessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *PGSessionRepository {
	return &PGSessionRepository{pool: pool}
}

func (r *PGSessionRepository) Upsert(ctx context.Context, session Session) error {
	const query = `
		INSERT INTO sessions (user_id, token_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET token_id = EXCLUDED.token_id, issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at`

	_, err := r.pool.Exec(ctx, query, session.UserID, session.TokenID, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("auth: upsert session: %w", err)
	}
	return nil
}

func (r *PGSessionRepository) Get(ctx context.Context, userID int) (Session, error) {
	const query = `SELECT user_id, token_id, issued_at, expires_at FROM sessions WHERE user_id = $1`

	var s Session
	err := r.pool.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.TokenID, &s.IssuedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("auth: get session: %w", err)
	}
	return s, nil
}

// Revoke deletes the user's session row. Deleting a missing row is not an
// error, so it doubles as the logout path and as the hook user deactivation
// calls.
func (r *PGSessionRepository) Revoke(ctx context.Context, userID int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	return nil
}
