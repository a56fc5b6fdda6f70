package service

import (
	"context"
	"strings"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// LoginService drives the end-to-end login state machine:
// CHECK_TENANT -> CHECK_CREDENTIALS -> {SETUP_REQUIRED | CODE_REQUIRED | GRANT}.
type LoginService struct {
	Tenants  *TenantService
	Creds    *CredentialService
	TOTP     *TOTPService
	Sessions *SessionService
}

type LoginInput struct {
	ClientCode string
	Username   string
	Password   string
	TOTPCode   string
	BackupCode string
}

// Login runs the full flow. Failure modes map onto the service error
// taxonomy; the two challenge states surface as ErrTOTPRequired and
// *SetupRequiredError so handlers can emit the machine-readable flags.
func (s *LoginService) Login(ctx context.Context, in LoginInput) (domain.LoginGrant, error) {
	tenant, err := s.Tenants.Resolve(ctx, in.ClientCode)
	if err != nil {
		return domain.LoginGrant{}, err
	}

	user, err := s.Creds.Validate(ctx, tenant.ID, in.Username, in.Password)
	if err != nil {
		return domain.LoginGrant{}, err
	}

	// Elevated role with no enrollment: the only thing a login may yield is
	// a setup token.
	if user.Role.RequiresTOTP() && !user.TOTPEnabled {
		challenge, err := s.TOTP.InitiateSetup(ctx, user, true)
		if err != nil {
			return domain.LoginGrant{}, err
		}
		return domain.LoginGrant{}, &SetupRequiredError{
			User:       user.Summarize(),
			SetupToken: challenge.SetupToken,
		}
	}

	totpCode := strings.TrimSpace(in.TOTPCode)
	backupCode := strings.TrimSpace(in.BackupCode)

	totpSatisfied := false
	amr := []string{jwtx.AMRPassword}

	switch {
	case user.TOTPEnabled && totpCode == "" && backupCode == "":
		return domain.LoginGrant{}, ErrTOTPRequired

	case user.TOTPEnabled && totpCode != "":
		if err := s.TOTP.ValidateLogin(ctx, user, totpCode); err != nil {
			return domain.LoginGrant{}, s.countCodeFailure(ctx, user.ID, err)
		}
		totpSatisfied = true
		amr = append(amr, jwtx.AMROTP)

	case user.TOTPEnabled && backupCode != "":
		if err := s.TOTP.ValidateBackupCode(ctx, user, backupCode); err != nil {
			return domain.LoginGrant{}, s.countCodeFailure(ctx, user.ID, err)
		}
		totpSatisfied = true
		amr = append(amr, jwtx.AMRBackup)
	}

	// Terminal success for every factor the account requires; only now may
	// the shared failure counter reset.
	if err := s.Creds.ClearFailures(ctx, user); err != nil {
		return domain.LoginGrant{}, err
	}

	token, ttl, err := s.Sessions.Issue(user, totpSatisfied, amr)
	if err != nil {
		return domain.LoginGrant{}, err
	}

	slogx.FromContext(ctx).Info("login granted",
		"user_id", user.ID, "tenant_id", user.TenantID, "totp", totpSatisfied)

	return domain.LoginGrant{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		User:        user.Summarize(),
	}, nil
}

// SetupLogin is the unauthenticated enrollment path: re-proves the password
// and returns a QR payload plus a setup token for completion.
func (s *LoginService) SetupLogin(
	ctx context.Context,
	clientCode, username, password string,
) (domain.SetupChallenge, error) {
	user, err := s.authenticate(ctx, clientCode, username, password)
	if err != nil {
		return domain.SetupChallenge{}, err
	}
	return s.TOTP.InitiateSetup(ctx, user, true)
}

type VerifySetupLoginInput struct {
	ClientCode string
	Username   string
	Password   string
	SetupToken string
	TOTPCode   string
}

// VerifySetupLogin completes login-time enrollment. The caller proves their
// identity either with a setup token from SetupLogin or by re-supplying
// credentials; both resolve to the same version-checked verification.
func (s *LoginService) VerifySetupLogin(ctx context.Context, in VerifySetupLoginInput) ([]string, error) {
	var (
		user domain.User
		err  error
	)
	if in.SetupToken != "" {
		user, err = s.TOTP.ResolveSetupToken(ctx, in.SetupToken)
		// A setup token must not bypass the cooldown the credential path
		// enforces.
		if err == nil && user.Locked(time.Now().UTC()) {
			err = ErrAccountLocked
		}
	} else {
		user, err = s.authenticate(ctx, in.ClientCode, in.Username, in.Password)
	}
	if err != nil {
		return nil, err
	}

	codes, err := s.TOTP.VerifySetup(ctx, user, in.TOTPCode)
	if err != nil {
		if err == ErrInvalidTOTPCode {
			return nil, s.countCodeFailure(ctx, user.ID, err)
		}
		return nil, err
	}

	if err := s.Creds.ClearFailures(ctx, user); err != nil {
		return nil, err
	}
	return codes, nil
}

// ResetLogin clears an enrollment after the password is re-proved and
// starts over, returning the fresh challenge.
func (s *LoginService) ResetLogin(
	ctx context.Context,
	clientCode, username, password string,
) (domain.SetupChallenge, error) {
	user, err := s.authenticate(ctx, clientCode, username, password)
	if err != nil {
		return domain.SetupChallenge{}, err
	}
	return s.TOTP.Reset(ctx, user)
}

func (s *LoginService) authenticate(
	ctx context.Context,
	clientCode, username, password string,
) (domain.User, error) {
	tenant, err := s.Tenants.Resolve(ctx, clientCode)
	if err != nil {
		return domain.User{}, err
	}
	return s.Creds.Validate(ctx, tenant.ID, username, password)
}

// countCodeFailure books a failed one-time code against the shared lockout
// counter before propagating the original error.
func (s *LoginService) countCodeFailure(ctx context.Context, userID string, cause error) error {
	if err := s.Creds.RegisterFailure(ctx, userID); err != nil {
		return err
	}
	return cause
}
