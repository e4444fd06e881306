package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/libreshelf/server/internal/model"
)

// TotpRepo defines the TOTP secret store operations
type TotpRepo interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (model.TotpSecret, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID, secret string) (model.TotpSecret, error)
	AdvanceLastStep(ctx context.Context, userID uuid.UUID, step int64) error
}

type totpRepo struct {
	db *sql.DB
}

// NewTotpRepo creates a new TotpRepo instance
func NewTotpRepo(db *sql.DB) TotpRepo {
	return &totpRepo{db: db}
}

// GetByUser retrieves the secret for a user
func (r *totpRepo) GetByUser(ctx context.Context, userID uuid.UUID) (model.TotpSecret, error) {
	var s model.TotpSecret
	var userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, secret, last_used_step, created_at
		FROM totp_secrets
		WHERE user_id = $1
	`, userID).Scan(
		&userIDStr,
		&s.Secret,
		&s.LastUsedStep,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TotpSecret{}, fmt.Errorf("totp secret: %w", ErrNotFound)
		}
		return model.TotpSecret{}, fmt.Errorf("query totp secret: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.TotpSecret{}, fmt.Errorf("parse user ID: %w", err)
	}
	return s, nil
}

// GetOrCreate persists the candidate secret if the user has none yet and
// returns whichever secret ended up stored. Concurrent first-time callers
// race on ON CONFLICT DO NOTHING, so at most one secret is ever persisted
// and every caller reads back the same row.
func (r *totpRepo) GetOrCreate(ctx context.Context, userID uuid.UUID, secret string) (model.TotpSecret, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO totp_secrets (user_id, secret)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, secret)
	if err != nil {
		return model.TotpSecret{}, fmt.Errorf("insert totp secret: %w", err)
	}
	return r.GetByUser(ctx, userID)
}

// AdvanceLastStep records the accepted TOTP time step. The update only
// applies when step is strictly greater than the stored one, so a code
// captured within the skew window cannot be accepted twice.
func (r *totpRepo) AdvanceLastStep(ctx context.Context, userID uuid.UUID, step int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE totp_secrets
		SET last_used_step = $2
		WHERE user_id = $1 AND last_used_step < $2
	`, userID, step)
	if err != nil {
		return fmt.Errorf("advance totp step: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrReplayedStep
	}
	return nil
}
