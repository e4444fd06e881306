package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	CSRFSecret  string
	CSRFEnforce bool
	TotpIssuer  string
	// SecondFactorTTL is the window a second-factor verification stays valid.
	SecondFactorTTL time.Duration
	// SessionTTL is the transport lifetime of a session record.
	SessionTTL time.Duration
}

const (
	defaultPort            = "8080"
	defaultTotpIssuer      = "LibreShelf"
	defaultSecondFactorTTL = 300 * time.Second
	defaultSessionTTL      = 168 * time.Hour
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:            defaultPort,
		TotpIssuer:      defaultTotpIssuer,
		SecondFactorTTL: defaultSecondFactorTTL,
		SessionTTL:      defaultSessionTTL,
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	csrfSecret := os.Getenv("CSRF_SECRET")
	if csrfSecret == "" {
		return nil, fmt.Errorf("CSRF_SECRET environment variable is required")
	}
	cfg.CSRFSecret = csrfSecret

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if issuer := os.Getenv("TOTP_ISSUER"); issuer != "" {
		cfg.TotpIssuer = issuer
	}
	cfg.CSRFEnforce = os.Getenv("CSRF_ENFORCE") == "true"

	if v := os.Getenv("SECOND_FACTOR_TTL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("SECOND_FACTOR_TTL must be a positive number of seconds, got %q", v)
		}
		cfg.SecondFactorTTL = time.Duration(secs) * time.Second
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return nil, fmt.Errorf("SESSION_TTL must be a positive number of hours, got %q", v)
		}
		cfg.SessionTTL = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}
