package auth

import "errors"

// Authentication failures are returned as these sentinel errors and mapped to
// HTTP status codes at the handler boundary; they are never raised as faults.
var (
	// ErrInvalidCredentials covers both unknown username and wrong password,
	// deliberately indistinguishable to prevent user enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidOtpCode means the submitted code matched no step in the skew
	// window, or matched a step that was already consumed.
	ErrInvalidOtpCode = errors.New("invalid OTP code")

	// ErrSessionNotFirstFactorVerified means an OTP was submitted before login.
	ErrSessionNotFirstFactorVerified = errors.New("password login required before OTP verification")

	// ErrProfileMissing means the credential or TOTP secret record is absent
	// where the flow guarantees it should exist (data inconsistency).
	ErrProfileMissing = errors.New("profile not found")

	// ErrNotAuthenticated means an authenticated-only operation was attempted
	// from an anonymous session.
	ErrNotAuthenticated = errors.New("not authenticated")
)
