package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account that can authenticate
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	IsSuperuser  bool
	CreatedAt    time.Time
}

// TotpSecret is the per-user shared secret for the second factor.
// At most one row ever exists per user; LastUsedStep records the highest
// accepted TOTP time step so a captured code cannot be replayed.
type TotpSecret struct {
	UserID       uuid.UUID
	Secret       string // base32, 160 bits of entropy
	LastUsedStep int64
	CreatedAt    time.Time
}
