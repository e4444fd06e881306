package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/model"
	"github.com/libreshelf/server/internal/repo"
)

// SessionCookieName carries the opaque session token.
const SessionCookieName = "libreshelf_session"

type contextKey string

const sessionKey contextKey = "session"

// Session resolves the opaque token (cookie, or Authorization bearer for API
// clients) to a session record and attaches it to the request context. When
// no valid token is presented, a fresh anonymous session is minted and its
// token set as a cookie. Downstream code never touches ambient session state;
// it works on the explicit model.Session.
func Session(sessions repo.SessionRepo, sessionTTL time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				sess, err := sessions.GetByTokenHash(r.Context(), auth.HashSessionToken(token))
				if err == nil {
					next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
					return
				}
				if !errors.Is(err, repo.ErrNotFound) {
					respondWithError(w, http.StatusInternalServerError, "session lookup failed")
					return
				}
				// Unknown or expired token: fall through and mint a new session.
			}

			token, hashHex, err := auth.GenerateSessionToken()
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, "session creation failed")
				return
			}
			sess, err := sessions.Create(r.Context(), hashHex, time.Now().Add(sessionTTL))
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, "session creation failed")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(sessionTTL / time.Second),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
		})
	}
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func withSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// GetSession returns the session attached to the request context.
func GetSession(ctx context.Context) (model.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(model.Session)
	return sess, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{"success": false, "error": message}
	_ = json.NewEncoder(w).Encode(response)
}
