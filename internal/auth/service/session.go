package service

import (
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
)

// SessionService mints the signed bearer tokens that gate every later
// request. Tokens are stateless: the TOTP guarantee is fixed at issuance
// and holds until expiry, an explicit trade-off favouring statelessness
// over instant revocation.
type SessionService struct {
	Signer jwtx.Signer
	Issuer string
	TTL    time.Duration
}

// Issue signs a session token for user. It refuses to mint a token for a
// role that mandates TOTP unless the code requirement was satisfied; for an
// unenrolled superadmin the only artifact a login can produce is a setup
// token, never a session.
func (s *SessionService) Issue(
	user domain.User,
	totpSatisfied bool,
	amr []string,
) (string, time.Duration, error) {
	if user.Role.RequiresTOTP() && !totpSatisfied {
		return "", 0, ErrTOTPRequired
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}

	claims := jwtx.NewSessionClaims(
		user.ID,
		user.TenantID,
		string(user.Role),
		user.Username,
		totpSatisfied,
		amr,
		s.Issuer,
		ttl,
		time.Now().UTC(),
	)

	token, err := s.Signer.Sign(claims)
	if err != nil {
		return "", 0, fmt.Errorf("sign session token: %w", err)
	}
	return token, ttl, nil
}
