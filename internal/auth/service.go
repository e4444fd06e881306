package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/libreshelf/server/internal/model"
	"github.com/libreshelf/server/internal/repo"
)

// AuthService orchestrates credential checks and TOTP verification and is the
// only mutator of a session's authentication stage.
type AuthService struct {
	userRepo        repo.UserRepo
	totpRepo        repo.TotpRepo
	sessionRepo     repo.SessionRepo
	totpEngine      *TotpEngine
	secondFactorTTL time.Duration

	now func() time.Time
}

// NewAuthService creates a new auth service. secondFactorTTL is the window a
// second-factor verification stays valid before the session lazily reverts to
// FirstFactorVerified.
func NewAuthService(
	userRepo repo.UserRepo,
	totpRepo repo.TotpRepo,
	sessionRepo repo.SessionRepo,
	totpEngine *TotpEngine,
	secondFactorTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:        userRepo,
		totpRepo:        totpRepo,
		sessionRepo:     sessionRepo,
		totpEngine:      totpEngine,
		secondFactorTTL: secondFactorTTL,
		now:             time.Now,
	}
}

// Login verifies the first factor. Unknown usernames and wrong passwords both
// return ErrInvalidCredentials after the same bcrypt cost. On success the
// session moves to FirstFactorVerified and a TOTP secret is provisioned for
// the user if none exists yet.
func (s *AuthService) Login(ctx context.Context, sess model.Session, username, password string) (model.User, model.Session, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			burnPasswordCheck(password)
			return model.User{}, sess, ErrInvalidCredentials
		}
		return model.User{}, sess, fmt.Errorf("load user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return model.User{}, sess, ErrInvalidCredentials
	}

	updated, err := s.sessionRepo.SetFirstFactor(ctx, sess.ID, user.ID)
	if err != nil {
		return model.User{}, sess, fmt.Errorf("set first factor: %w", err)
	}

	if _, err := s.provisionSecret(ctx, user.ID); err != nil {
		return model.User{}, sess, fmt.Errorf("provision TOTP secret: %w", err)
	}

	return user, updated, nil
}

// VerifySecondFactor checks the submitted OTP code for the session's user.
// Invalid codes (including replays of an already-consumed time step) leave
// the stage unchanged. On success the session moves to SecondFactorVerified
// with expiry = now + window.
func (s *AuthService) VerifySecondFactor(ctx context.Context, sess model.Session, code string) (model.Session, error) {
	now := s.now()
	if !sess.IsAuthenticated(now) {
		return sess, ErrSessionNotFirstFactorVerified
	}

	secret, err := s.totpRepo.GetByUser(ctx, *sess.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return sess, ErrProfileMissing
		}
		return sess, fmt.Errorf("load TOTP secret: %w", err)
	}

	step, ok := s.totpEngine.Verify(secret.Secret, strings.TrimSpace(code), now)
	if !ok {
		return sess, ErrInvalidOtpCode
	}

	if err := s.totpRepo.AdvanceLastStep(ctx, *sess.UserID, step); err != nil {
		if errors.Is(err, repo.ErrReplayedStep) {
			return sess, ErrInvalidOtpCode
		}
		return sess, fmt.Errorf("record TOTP step: %w", err)
	}

	updated, err := s.sessionRepo.SetSecondFactor(ctx, sess.ID, now.Add(s.secondFactorTTL))
	if err != nil {
		if errors.Is(err, repo.ErrStaleStage) {
			return sess, ErrSessionNotFirstFactorVerified
		}
		return sess, fmt.Errorf("set second factor: %w", err)
	}
	return updated, nil
}

// ProvisioningURI returns the otpauth:// enrollment URI for the session's
// user, creating the secret first if the user has none. Requires at least a
// verified first factor.
func (s *AuthService) ProvisioningURI(ctx context.Context, sess model.Session) (string, error) {
	if !sess.IsAuthenticated(s.now()) {
		return "", ErrNotAuthenticated
	}

	user, err := s.userRepo.GetByID(ctx, *sess.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrProfileMissing
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	secret, err := s.provisionSecret(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("provision TOTP secret: %w", err)
	}

	return s.totpEngine.ProvisioningURI(secret.Secret, user.Username)
}

// CurrentUser returns the user bound to an authenticated session.
func (s *AuthService) CurrentUser(ctx context.Context, sess model.Session) (model.User, error) {
	if !sess.IsAuthenticated(s.now()) {
		return model.User{}, ErrNotAuthenticated
	}
	user, err := s.userRepo.GetByID(ctx, *sess.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, ErrProfileMissing
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Logout resets the session to Anonymous. Always succeeds; resetting an
// already-anonymous session is a no-op.
func (s *AuthService) Logout(ctx context.Context, sess model.Session) error {
	if err := s.sessionRepo.Reset(ctx, sess.ID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// provisionSecret generates a candidate secret and lets the store decide
// whether it wins; concurrent callers all read back the single persisted row.
func (s *AuthService) provisionSecret(ctx context.Context, userID uuid.UUID) (model.TotpSecret, error) {
	candidate, err := NewTotpSecret()
	if err != nil {
		return model.TotpSecret{}, err
	}
	return s.totpRepo.GetOrCreate(ctx, userID, candidate)
}
