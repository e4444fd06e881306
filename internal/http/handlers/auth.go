package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/middleware"
	"github.com/libreshelf/server/internal/model"
)

// AuthHandler handles the authentication endpoints
type AuthHandler struct {
	authService  *auth.AuthService
	csrfService  *auth.CsrfService
	loginLimiter *middleware.RateLimiter
	otpLimiter   *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler.
// IP rate limits: 10 password logins and 20 OTP submissions per 10 minutes.
func NewAuthHandler(authService *auth.AuthService, csrfService *auth.CsrfService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		csrfService:  csrfService,
		loginLimiter: middleware.NewRateLimiter(10*time.Minute, 10),
		otpLimiter:   middleware.NewRateLimiter(10*time.Minute, 20),
	}
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the JSON response for a successful login
type loginResponse struct {
	Success         bool   `json:"success"`
	IsAuthenticated bool   `json:"is_authenticated"`
	FirstFactor     bool   `json:"first_factor"`
	SecondFactor    bool   `json:"second_factor"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	IsSuperuser     bool   `json:"is_superuser"`
}

// otpLoginRequest is the request body for POST /auth/otp-login
type otpLoginRequest struct {
	Key string `json:"key"`
}

// otpLoginResponse is the JSON response for a successful OTP verification
type otpLoginResponse struct {
	Success         bool `json:"success"`
	IsAuthenticated bool `json:"is_authenticated"`
	SecondFactor    bool `json:"second_factor"`
	IsSuperuser     bool `json:"is_superuser"`
}

// infoResponse is the JSON response for GET /auth/info
type infoResponse struct {
	Username        string `json:"username"`
	IsAuthenticated bool   `json:"is_authenticated"`
	IsSuperuser     bool   `json:"is_superuser"`
	SecondFactor    bool   `json:"second_factor"`
}

// HandleCsrf handles GET /auth/csrf: issues an anti-forgery token as a cookie
// plus body field for the double-submit check.
func (h *AuthHandler) HandleCsrf(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfService.Issue()
	if err != nil {
		log.Printf("Failed to issue CSRF token: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue CSRF token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // the client script must read it to echo the header
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "csrf_token": token})
}

// HandleInfo handles GET /auth/info: reflects the current session stage.
func (h *AuthHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSession(r.Context())
	now := time.Now()

	response := infoResponse{}
	if sess.IsAuthenticated(now) {
		user, err := h.authService.CurrentUser(r.Context(), sess)
		if err != nil {
			log.Printf("Failed to load session user: %v", err)
			respondWithError(w, http.StatusInternalServerError, "failed to load user")
			return
		}
		response.Username = user.Username
		response.IsAuthenticated = true
		response.IsSuperuser = user.IsSuperuser
		response.SecondFactor = sess.EffectiveStage(now) == model.StageSecondFactor
	}
	respondJSON(w, http.StatusOK, response)
}

// HandleLogin handles POST /auth/login: the first factor.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "no session")
		return
	}

	user, _, err := h.authService.Login(r.Context(), sess, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
			return
		}
		log.Printf("Login failed for user %s: %v", maskUsername(req.Username), err)
		respondWithError(w, http.StatusInternalServerError, "login failed")
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Success:         true,
		IsAuthenticated: true,
		FirstFactor:     true,
		SecondFactor:    false,
		Username:        user.Username,
		Email:           user.Email,
		IsSuperuser:     user.IsSuperuser,
	})
}

// HandleOtpLogin handles POST /auth/otp-login: the second factor. Failures
// return 401 like failed password logins; the old behavior of a 200 body with
// success:false was inconsistent between the factors.
func (h *AuthHandler) HandleOtpLogin(w http.ResponseWriter, r *http.Request) {
	var req otpLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		respondWithError(w, http.StatusBadRequest, "key is required")
		return
	}

	if !h.otpLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "no session")
		return
	}

	updated, err := h.authService.VerifySecondFactor(r.Context(), sess, req.Key)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionNotFirstFactorVerified):
			respondWithError(w, http.StatusUnauthorized, auth.ErrSessionNotFirstFactorVerified.Error())
		case errors.Is(err, auth.ErrProfileMissing):
			respondWithError(w, http.StatusNotFound, auth.ErrProfileMissing.Error())
		case errors.Is(err, auth.ErrInvalidOtpCode):
			respondWithError(w, http.StatusUnauthorized, auth.ErrInvalidOtpCode.Error())
		default:
			log.Printf("OTP verification failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "OTP verification failed")
		}
		return
	}

	user, err := h.authService.CurrentUser(r.Context(), updated)
	if err != nil {
		log.Printf("Failed to load session user: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	respondJSON(w, http.StatusOK, otpLoginResponse{
		Success:         true,
		IsAuthenticated: true,
		SecondFactor:    true,
		IsSuperuser:     user.IsSuperuser,
	})
}

// HandleTotpURL handles GET /auth/totp-url: returns the otpauth:// enrollment
// URI for the session's user, provisioning the secret if absent.
func (h *AuthHandler) HandleTotpURL(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "no session")
		return
	}

	url, err := h.authService.ProvisioningURI(r.Context(), sess)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAuthenticated):
			respondWithError(w, http.StatusUnauthorized, auth.ErrNotAuthenticated.Error())
		case errors.Is(err, auth.ErrProfileMissing):
			respondWithError(w, http.StatusNotFound, auth.ErrProfileMissing.Error())
		default:
			log.Printf("Failed to build provisioning URI: %v", err)
			respondWithError(w, http.StatusInternalServerError, "failed to build provisioning URI")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

// HandleLogout handles POST /auth/logout: resets the session to anonymous.
// Idempotent; logging out an anonymous session still reports success.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "no session")
		return
	}
	if err := h.authService.Logout(r.Context(), sess); err != nil {
		log.Printf("Logout failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// respondJSON writes a JSON response with the given status
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]interface{}{"success": false, "error": message})
}

// maskUsername masks a username for logging (e.g. al***ce)
func maskUsername(username string) string {
	if len(username) <= 4 {
		return "****"
	}
	return username[:2] + strings.Repeat("*", len(username)-4) + username[len(username)-2:]
}
