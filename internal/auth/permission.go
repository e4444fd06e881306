package auth

import (
	"time"

	"github.com/libreshelf/server/internal/model"
)

// OperationKind classifies an operation for permission checks. The caller
// supplies the classification; the evaluator knows nothing about business
// semantics, only session stage and second-factor expiry.
type OperationKind int

const (
	// OpSafe is a read-style operation available to any authenticated session.
	OpSafe OperationKind = iota
	// OpSensitive is a mutating operation (delete, privileged edit) that
	// requires a live second-factor verification from any authenticated user.
	OpSensitive
)

// CanPerform decides whether the session may perform an operation of the
// given kind at the given time:
//
//	stage                            safe   sensitive
//	Anonymous                        deny   deny
//	FirstFactorVerified              allow  deny
//	SecondFactorVerified (live)      allow  allow
//	SecondFactorVerified (expired)   allow  deny
//
// An expired second factor is indistinguishable from FirstFactorVerified.
func CanPerform(sess *model.Session, op OperationKind, now time.Time) bool {
	switch sess.EffectiveStage(now) {
	case model.StageSecondFactor:
		return true
	case model.StageFirstFactor:
		return op == OpSafe
	default:
		return false
	}
}
