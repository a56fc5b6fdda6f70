package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// Default lockout policy; overridable from config.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutCooldown  = 15 * time.Minute
)

// CredentialService validates passwords within one tenant and owns the
// failure counter that password and TOTP failures share, so code guessing
// cannot sidestep the password lockout.
type CredentialService struct {
	Store            store.Store
	LockoutThreshold int
	LockoutCooldown  time.Duration
}

// Validate checks username/password scoped to tenantID. Unknown users and
// wrong passwords return the same ErrInvalidCredentials. Accounts inside a
// lockout cooldown are rejected with ErrAccountLocked before the password
// is even examined.
func (s *CredentialService) Validate(
	ctx context.Context,
	tenantID, username, password string,
) (domain.User, error) {
	now := time.Now().UTC()

	user, err := s.Store.Users().GetByTenantAndUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if user.Locked(now) {
		return domain.User{}, ErrAccountLocked
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.User{}, fmt.Errorf("verify password: %w", err)
		}
		if err := s.RegisterFailure(ctx, user.ID); err != nil {
			return domain.User{}, err
		}
		return domain.User{}, ErrInvalidCredentials
	}

	// The counter stays put here. Password and one-time-code failures
	// share it, so it may only reset once the whole login succeeds;
	// clearing after the password stage alone would let correct-password
	// code guessing cycle it forever.
	return user, nil
}

// ClearFailures resets the shared counter after a fully successful login
// or completed enrollment.
func (s *CredentialService) ClearFailures(ctx context.Context, user domain.User) error {
	if user.FailedAttempts == 0 && user.LockedUntil == nil {
		return nil
	}
	if err := s.Store.Users().ClearFailures(ctx, user.ID); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}
	return nil
}

// RegisterFailure counts one failed attempt (password or one-time code)
// against the shared lockout counter. The increment and the threshold check
// happen in a single conditional update.
func (s *CredentialService) RegisterFailure(ctx context.Context, userID string) error {
	threshold := s.LockoutThreshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	cooldown := s.LockoutCooldown
	if cooldown <= 0 {
		cooldown = DefaultLockoutCooldown
	}

	count, lockedUntil, err := s.Store.Users().RegisterFailure(
		ctx, userID, threshold, time.Now().UTC().Add(cooldown))
	if err != nil {
		return fmt.Errorf("register failure: %w", err)
	}

	if lockedUntil != nil {
		slogx.FromContext(ctx).Warn("account locked after repeated failures",
			"user_id", userID,
			"attempts", count,
			"locked_until", lockedUntil.Format(time.RFC3339),
		)
	}
	return nil
}
