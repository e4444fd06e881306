package middleware

import (
	"net/http"
	"time"

	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/model"
)

// RequireAuthenticated rejects requests whose session has no verified first
// factor. 401 with a JSON body, matching failed-login responses.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := GetSession(r.Context())
		if !ok || !sess.IsAuthenticated(time.Now()) {
			respondWithError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission gates a route on the permission evaluator. This is the
// interface the data-access endpoints (book/genre/loan CRUD, exports) mount:
// reads pass as OpSafe, deletes and privileged edits as OpSensitive. Anonymous
// sessions get 401; authenticated sessions lacking a live second factor get
// 403 on sensitive routes.
func RequirePermission(op auth.OperationKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := GetSession(r.Context())
			now := time.Now()
			if !ok || sess.EffectiveStage(now) == model.StageAnonymous {
				respondWithError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if !auth.CanPerform(&sess, op, now) {
				respondWithError(w, http.StatusForbidden, "two-factor authentication required for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
