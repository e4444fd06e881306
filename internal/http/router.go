package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/http/handlers"
	"github.com/libreshelf/server/internal/middleware"
	"github.com/libreshelf/server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	csrfService *auth.CsrfService,
	sessionRepo repo.SessionRepo,
	sessionTTL time.Duration,
	csrfEnforce bool,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(sessionRepo, sessionTTL))
		r.Use(middleware.CSRF(csrfService, csrfEnforce))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/csrf", authHandler.HandleCsrf)
			r.Get("/info", authHandler.HandleInfo)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/otp-login", authHandler.HandleOtpLogin)
			r.Post("/logout", authHandler.HandleLogout)

			// Enrollment URI requires at least a verified first factor.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuthenticated)
				r.Get("/totp-url", authHandler.HandleTotpURL)
			})
		})
	})

	return r
}
