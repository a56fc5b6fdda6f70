package service

import (
	"errors"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
)

// Authentication failure taxonomy. Handlers map these onto the generic,
// non-enumerating wire responses; none of them reveals whether a tenant or
// username exists.
var (
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrTOTPRequired       = errors.New("totp_required")
	ErrInvalidTOTPCode    = errors.New("invalid_totp_code")
	ErrInvalidBackupCode  = errors.New("invalid_backup_code")
	ErrSetupTokenInvalid  = errors.New("setup_token_invalid")
	ErrNoPendingSetup     = errors.New("no_pending_totp_setup")
	ErrSetupConflict      = errors.New("totp_setup_conflict")
	ErrTOTPAlreadyEnabled = errors.New("totp_already_enabled")
	ErrRoleNotEligible    = errors.New("role_not_eligible")
	ErrQuotaExceeded      = errors.New("user_quota_exceeded")
	ErrUserExists         = errors.New("username_taken")
	ErrTenantExists       = errors.New("client_code_taken")
	ErrInvalidClientCode  = errors.New("invalid_client_code")
)

// SetupRequiredError is returned on the login path when an elevated role has
// no TOTP enrollment yet: credentials were correct, but the only artifact
// issued is a setup token, never a session.
type SetupRequiredError struct {
	User       domain.Summary
	SetupToken string
}

func (e *SetupRequiredError) Error() string { return "totp_setup_required" }
