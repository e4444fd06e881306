package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// totpPeriod is the RFC 6238 time step in seconds.
	totpPeriod = 30
	// totpSecretBytes gives 160 bits of entropy (32 base32 characters).
	totpSecretBytes = 20
	// totpSkew accepts codes from this many adjacent steps on each side,
	// tolerating clock drift between client and server.
	totpSkew = 1
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTotpSecret generates a cryptographically random base32 TOTP secret.
func NewTotpSecret() (string, error) {
	b := make([]byte, totpSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate TOTP secret: %w", err)
	}
	return b32NoPadding.EncodeToString(b), nil
}

// TotpEngine verifies time-based one-time codes and builds enrollment URIs.
// Codes are 6 decimal digits, zero-padded, over 30-second steps.
type TotpEngine struct {
	issuer string
}

// NewTotpEngine creates an engine that labels provisioning URIs with issuer.
func NewTotpEngine(issuer string) *TotpEngine {
	return &TotpEngine{issuer: issuer}
}

// Verify checks code against the secret at time t, accepting the current step
// and totpSkew adjacent steps on each side. On success it returns the time
// step the code matched, which callers persist to reject replays. Each
// candidate comparison is constant-time.
func (e *TotpEngine) Verify(secret, code string, t time.Time) (int64, bool) {
	if len(code) != 6 {
		return 0, false
	}
	step := t.Unix() / totpPeriod
	for delta := int64(-totpSkew); delta <= totpSkew; delta++ {
		at := time.Unix((step+delta)*totpPeriod, 0).UTC()
		want, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
			Period:    totpPeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step + delta, true
		}
	}
	return 0, false
}

// ProvisioningURI returns the otpauth:// URI for enrolling the secret in an
// authenticator app, suitable for rendering as a QR code. Pure function.
func (e *TotpEngine) ProvisioningURI(secret, account string) (string, error) {
	raw, err := b32NoPadding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("decode TOTP secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Secret:      raw,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("build provisioning URI: %w", err)
	}
	return key.URL(), nil
}
