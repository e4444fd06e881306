package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the authentication stage of a session.
type Stage string

const (
	StageAnonymous    Stage = "anonymous"
	StageFirstFactor  Stage = "first_factor"
	StageSecondFactor Stage = "second_factor"
)

// Session is an explicit, server-side login session keyed by an opaque token.
// Only the SHA-256 of the token is ever stored. The stage field is mutated
// exclusively through the auth service; permission checks read it via
// EffectiveStage so second-factor expiry never needs a background timer.
type Session struct {
	ID                    uuid.UUID
	TokenHash             string
	UserID                *uuid.UUID
	Stage                 Stage
	SecondFactorExpiresAt *time.Time
	CreatedAt             time.Time
	ExpiresAt             time.Time
}

// EffectiveStage returns the stage the session is in at the given time.
// A second-factor verification whose window has elapsed reverts to
// FirstFactorVerified (not Anonymous): the user must re-verify the OTP
// for sensitive actions but does not have to log in again.
func (s *Session) EffectiveStage(now time.Time) Stage {
	if s == nil {
		return StageAnonymous
	}
	if s.Stage == StageSecondFactor {
		if s.SecondFactorExpiresAt == nil || !now.Before(*s.SecondFactorExpiresAt) {
			return StageFirstFactor
		}
	}
	return s.Stage
}

// IsAuthenticated reports whether the session has at least a verified
// first factor at the given time.
func (s *Session) IsAuthenticated(now time.Time) bool {
	if s == nil || s.UserID == nil {
		return false
	}
	return s.EffectiveStage(now) != StageAnonymous
}
