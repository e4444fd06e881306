package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libreshelf/server/internal/auth"
	"github.com/libreshelf/server/internal/config"
	"github.com/libreshelf/server/internal/db"
	httphandler "github.com/libreshelf/server/internal/http"
	"github.com/libreshelf/server/internal/http/handlers"
	"github.com/libreshelf/server/internal/repo"
	_ "github.com/lib/pq"
)

func TestMain(m *testing.M) {
	// Integration tests skip when DATABASE_URL is missing; never set it here.
	if os.Getenv("CSRF_SECRET") == "" {
		os.Setenv("CSRF_SECRET", "test-csrf-secret-at-least-32-characters")
	}
	os.Exit(m.Run())
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Config *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that the test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")
	require.NoError(t, TruncateAuthTables(ctx, database), "truncate auth tables")

	userRepo := repo.NewUserRepo(database)
	totpRepo := repo.NewTotpRepo(database)
	sessionRepo := repo.NewSessionRepo(database)

	totpEngine := auth.NewTotpEngine(cfg.TotpIssuer)
	csrfService := auth.NewCsrfService(cfg.CSRFSecret)
	authService := auth.NewAuthService(userRepo, totpRepo, sessionRepo, totpEngine, cfg.SecondFactorTTL)
	authHandler := handlers.NewAuthHandler(authService, csrfService)

	router := httphandler.NewRouter(authHandler, csrfService, sessionRepo, cfg.SessionTTL, cfg.CSRFEnforce)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Config: cfg}
}

// newClient returns an HTTP client with a cookie jar, so the session cookie
// flows across requests the way a browser would carry it.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (s *testServer) createUser(t *testing.T, username, email, password string, superuser bool) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	_, err = repo.NewUserRepo(s.DB).Create(context.Background(), username, email, hash, superuser)
	require.NoError(t, err)
}

// totpSecretFor reads the provisioned secret straight from the store, playing
// the role of the user's authenticator app.
func (s *testServer) totpSecretFor(t *testing.T, username string) string {
	t.Helper()
	var secret string
	err := s.DB.QueryRow(`
		SELECT ts.secret FROM totp_secrets ts
		JOIN users u ON u.id = ts.user_id
		WHERE u.username = $1
	`, username).Scan(&secret)
	require.NoError(t, err, "TOTP secret should be provisioned")
	return secret
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp, decodeJSON(t, resp)
}

func getJSON(t *testing.T, client *http.Client, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	return resp, decodeJSON(t, resp)
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body), "response should be JSON: %s", raw)
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := getJSON(t, newClient(t), ts.Server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCsrf(t *testing.T) {
	ts := newTestServer(t)
	client := newClient(t)

	resp, body := getJSON(t, client, ts.Server.URL+"/auth/csrf")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["csrf_token"])

	var csrfCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == "_csrf" {
			csrfCookie = true
			assert.Equal(t, body["csrf_token"], c.Value)
		}
	}
	assert.True(t, csrfCookie, "_csrf cookie should be set")
}

func TestInfo_anonymous(t *testing.T) {
	ts := newTestServer(t)
	resp, body := getJSON(t, newClient(t), ts.Server.URL+"/auth/info")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["is_authenticated"])
	assert.Equal(t, false, body["is_superuser"])
	assert.Equal(t, false, body["second_factor"])
	assert.Equal(t, "", body["username"])
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice@example.com", "correct-pw", false)

	t.Run("success", func(t *testing.T) {
		client := newClient(t)
		resp, body := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
			"username": "alice", "password": "correct-pw",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["is_authenticated"])
		assert.Equal(t, true, body["first_factor"])
		assert.Equal(t, false, body["second_factor"])
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, false, body["is_superuser"])

		// Lazy provisioning happened.
		ts.totpSecretFor(t, "alice")

		// Info now reflects the first factor.
		_, info := getJSON(t, client, ts.Server.URL+"/auth/info")
		assert.Equal(t, true, info["is_authenticated"])
		assert.Equal(t, false, info["second_factor"])
	})

	t.Run("wrong password", func(t *testing.T) {
		client := newClient(t)
		resp, body := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
			"username": "alice", "password": "wrong-pw",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		wrongPwError := body["error"]

		// Session stays anonymous.
		_, info := getJSON(t, client, ts.Server.URL+"/auth/info")
		assert.Equal(t, false, info["is_authenticated"])

		// Unknown user gets the identical error string.
		resp2, body2 := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
			"username": "nobody", "password": "whatever",
		})
		assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
		assert.Equal(t, wrongPwError, body2["error"])
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, _ := postJSON(t, newClient(t), ts.Server.URL+"/auth/login", map[string]string{"username": "alice"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestOtpLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice@example.com", "correct-pw", false)

	t.Run("before login", func(t *testing.T) {
		resp, body := postJSON(t, newClient(t), ts.Server.URL+"/auth/otp-login", map[string]string{"key": "123456"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("wrong then right code", func(t *testing.T) {
		client := newClient(t)
		resp, _ := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
			"username": "alice", "password": "correct-pw",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		secret := ts.totpSecretFor(t, "alice")
		valid := validCode(t, secret, time.Now())
		wrong := flipDigit(valid)

		resp, body := postJSON(t, client, ts.Server.URL+"/auth/otp-login", map[string]string{"key": wrong})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["success"])

		// Failed OTP leaves the first factor intact.
		_, info := getJSON(t, client, ts.Server.URL+"/auth/info")
		assert.Equal(t, true, info["is_authenticated"])
		assert.Equal(t, false, info["second_factor"])

		resp, body = postJSON(t, client, ts.Server.URL+"/auth/otp-login", map[string]string{"key": valid})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["second_factor"])

		_, info = getJSON(t, client, ts.Server.URL+"/auth/info")
		assert.Equal(t, true, info["second_factor"])

		// Replaying the consumed code is refused.
		resp, body = postJSON(t, client, ts.Server.URL+"/auth/otp-login", map[string]string{"key": valid})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})
}

func TestTotpURL(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "bob", "bob@example.com", "hunter22", true)

	t.Run("requires authentication", func(t *testing.T) {
		resp, _ := getJSON(t, newClient(t), ts.Server.URL+"/auth/totp-url")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("returns stable enrollment URI", func(t *testing.T) {
		client := newClient(t)
		resp, _ := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
			"username": "bob", "password": "hunter22",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, body := getJSON(t, client, ts.Server.URL+"/auth/totp-url")
		url, _ := body["url"].(string)
		assert.Contains(t, url, "otpauth://totp/")
		assert.Contains(t, url, "bob")
		assert.Contains(t, url, "issuer="+ts.Config.TotpIssuer)

		_, again := getJSON(t, client, ts.Server.URL+"/auth/totp-url")
		assert.Equal(t, body["url"], again["url"], "secret is stable, never rotated")
	})
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice@example.com", "correct-pw", false)
	client := newClient(t)

	resp, _ := postJSON(t, client, ts.Server.URL+"/auth/login", map[string]string{
		"username": "alice", "password": "correct-pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, client, ts.Server.URL+"/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	_, info := getJSON(t, client, ts.Server.URL+"/auth/info")
	assert.Equal(t, false, info["is_authenticated"])

	// Idempotent: a second logout on the same (now anonymous) session.
	resp, body = postJSON(t, client, ts.Server.URL+"/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
}
