package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/libreshelf/server/internal/model"
)

// SessionRepo defines the session store operations. Every stage transition is
// a single conditional UPDATE, so concurrent requests on one session are
// serialized by the database row without cross-statement locks.
type SessionRepo interface {
	Create(ctx context.Context, tokenHash string, expiresAt time.Time) (model.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error)
	SetFirstFactor(ctx context.Context, id uuid.UUID, userID uuid.UUID) (model.Session, error)
	SetSecondFactor(ctx context.Context, id uuid.UUID, expiresAt time.Time) (model.Session, error)
	Reset(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, token_hash, user_id, stage, second_factor_expires_at, created_at, expires_at`

func scanSession(row *sql.Row) (model.Session, error) {
	var s model.Session
	var idStr string
	var userIDStr sql.NullString
	err := row.Scan(
		&idStr,
		&s.TokenHash,
		&userIDStr,
		&s.Stage,
		&s.SecondFactorExpiresAt,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, fmt.Errorf("session: %w", ErrNotFound)
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	if userIDStr.Valid && userIDStr.String != "" {
		u, err := uuid.Parse(userIDStr.String)
		if err != nil {
			return model.Session{}, fmt.Errorf("parse user ID: %w", err)
		}
		s.UserID = &u
	}
	return s, nil
}

// Create inserts a new anonymous session for the token hash
func (r *sessionRepo) Create(ctx context.Context, tokenHash string, expiresAt time.Time) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (token_hash, expires_at)
		VALUES ($1, $2)
		RETURNING `+sessionColumns+`
	`, tokenHash, expiresAt)
	return scanSession(row)
}

// GetByTokenHash returns the live (unexpired) session for the token hash
func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE token_hash = $1 AND expires_at > now()
	`, tokenHash)
	return scanSession(row)
}

// SetFirstFactor binds the session to the user and moves it to
// FirstFactorVerified, clearing any prior second-factor state. Repeated
// successful logins land in the same stage; they never regress it.
func (r *sessionRepo) SetFirstFactor(ctx context.Context, id uuid.UUID, userID uuid.UUID) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET user_id = $2, stage = 'first_factor', second_factor_expires_at = NULL
		WHERE id = $1 AND expires_at > now()
		RETURNING `+sessionColumns+`
	`, id, userID)
	return scanSession(row)
}

// SetSecondFactor moves the session to SecondFactorVerified with the given
// window expiry. The WHERE clause requires an already-bound user, so a
// session can only reach the second factor through the first.
func (r *sessionRepo) SetSecondFactor(ctx context.Context, id uuid.UUID, expiresAt time.Time) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET stage = 'second_factor', second_factor_expires_at = $2
		WHERE id = $1 AND user_id IS NOT NULL AND stage <> 'anonymous' AND expires_at > now()
		RETURNING `+sessionColumns+`
	`, id, expiresAt)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Session{}, ErrStaleStage
		}
		return model.Session{}, err
	}
	return sess, nil
}

// Reset returns the session to Anonymous, clearing user and expiry.
// Resetting an already-anonymous session is a no-op, so logout is idempotent.
func (r *sessionRepo) Reset(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET user_id = NULL, stage = 'anonymous', second_factor_expires_at = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose transport lifetime has lapsed.
func (r *sessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at <= now()
	`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
