package repo

import "errors"

var (
	// ErrNotFound is returned when no matching row exists.
	ErrNotFound = errors.New("not found")

	// ErrStaleStage is returned when a session transition's precondition no
	// longer holds (e.g. second-factor update on an anonymous session).
	ErrStaleStage = errors.New("session stage precondition failed")

	// ErrReplayedStep is returned when a TOTP step is not strictly greater
	// than the last accepted step for the user.
	ErrReplayedStep = errors.New("TOTP step already consumed")
)
