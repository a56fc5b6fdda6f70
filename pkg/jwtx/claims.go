// Package jwtx signs and verifies the bearer session tokens issued at
// login. Tokens are stateless: every later request is authorized purely from
// the verified claims.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the default lifetime for session tokens.
const DefaultSessionTTL = 24 * time.Hour

// Authentication Method Reference values carried in the amr claim.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRBackup   = "bkp"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Claims are the session-token claims. Additive changes only, to keep older
// tokens parseable until they expire.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID scopes every authorization decision to one tenant.
	TenantID string `json:"tid"`

	// Role is the user's role at issuance time ("user", "admin", "superadmin").
	Role string `json:"role"`

	// TOTPSatisfied records whether a one-time code (or backup code) was
	// presented for this session. Fixed at issuance; never re-checked.
	TOTPSatisfied bool `json:"totp_ok"`

	// AMR lists the authentication methods used, e.g. ["pwd","otp"].
	AMR []string `json:"amr,omitempty"`

	// Username for display and audit logging.
	Username string `json:"username,omitempty"`
}

// NewSessionClaims builds minimally-correct claims for a login session.
func NewSessionClaims(
	userID, tenantID, role, username string,
	totpSatisfied bool,
	amr []string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		TenantID:      tenantID,
		Role:          role,
		TOTPSatisfied: totpSatisfied,
		AMR:           amr,
		Username:      username,
	}
}

func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer when one is expected.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiry ensures the token is inside its [nbf, exp] window.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}
