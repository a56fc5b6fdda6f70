package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newClaims(issuer string, ttl time.Duration) Claims {
	return NewSessionClaims(
		"user-1", "tenant-1", "admin", "alice",
		true, []string{AMRPassword, AMROTP},
		issuer, ttl, time.Now().UTC(),
	)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	keys, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)

	token, err := keys.Sign(newClaims("opsdesk-auth", time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := keys.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "alice", claims.Username)
	require.True(t, claims.TOTPSatisfied)
	require.Equal(t, []string{AMRPassword, AMROTP}, claims.AMR)
	require.NotEmpty(t, claims.ID, "jti must be set")
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	keys, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)

	token, err := keys.Sign(newClaims("opsdesk-auth", time.Hour))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	_, err = keys.Verify(tampered)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	mine, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)
	theirs, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)

	token, err := theirs.Sign(newClaims("opsdesk-auth", time.Hour))
	require.NoError(t, err)

	_, err = mine.Verify(token)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	keys, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)

	token, err := keys.Sign(newClaims("someone-else", time.Hour))
	require.NoError(t, err)

	_, err = keys.Verify(token)
	require.ErrorIs(t, err, ErrIssuer)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	keys, err := NewEphemeralKeyPair("opsdesk-auth")
	require.NoError(t, err)

	claims := NewSessionClaims(
		"user-1", "tenant-1", "admin", "alice",
		true, nil, "opsdesk-auth", time.Hour,
		time.Now().UTC().Add(-2*time.Hour),
	)
	token, err := keys.Sign(claims)
	require.NoError(t, err)

	_, err = keys.Verify(token)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestValidateExpiryWindow(t *testing.T) {
	now := time.Now().UTC()

	fresh := newClaims("iss", time.Hour)
	require.NoError(t, fresh.ValidateExpiry())

	expired := NewSessionClaims("u", "t", "user", "", false, nil, "iss", time.Minute, now.Add(-time.Hour))
	require.ErrorIs(t, expired.ValidateExpiry(), ErrExpired)

	future := NewSessionClaims("u", "t", "user", "", false, nil, "iss", time.Hour, now.Add(time.Hour))
	require.ErrorIs(t, future.ValidateExpiry(), ErrNotYetValid)
}
