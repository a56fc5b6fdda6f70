package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30 // seconds per time step
	totpSkew   = 1  // accepted steps either side of now, for clock drift

	backupCodeCount = 8

	// Default TTLs; overridable from config.
	DefaultSetupTTL      = 10 * time.Minute
	DefaultSetupTokenTTL = 10 * time.Minute
)

// TOTPService drives the per-user enrollment state machine: initiation
// writes only an ephemeral pending record, verification is the single point
// that persists a trusted secret, and login-time validation enforces the
// replay window.
type TOTPService struct {
	Store  store.Store
	Issuer string // issuer name embedded in otpauth:// payloads

	SetupTTL      time.Duration
	SetupTokenTTL time.Duration
}

// InitiateSetup generates a fresh secret and QR payload for the user,
// superseding any earlier pending secret by bumping setup_version. When
// withToken is set (the unauthenticated login-time path) it also mints a
// single-use setup token authorizing completion without a session.
func (s *TOTPService) InitiateSetup(
	ctx context.Context,
	user domain.User,
	withToken bool,
) (domain.SetupChallenge, error) {
	if user.TOTPEnabled {
		return domain.SetupChallenge{}, ErrTOTPAlreadyEnabled
	}
	if !user.Role.CanEnrollTOTP() {
		return domain.SetupChallenge{}, ErrRoleNotEligible
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.SetupChallenge{}, fmt.Errorf("generate totp key: %w", err)
	}

	version, err := s.Store.PendingSetups().Upsert(
		ctx, user.ID, key.Secret(), time.Now().UTC().Add(s.setupTTL()))
	if err != nil {
		return domain.SetupChallenge{}, fmt.Errorf("store pending setup: %w", err)
	}

	challenge := domain.SetupChallenge{
		Secret: key.Secret(),
		QRCode: key.URL(),
	}

	if withToken {
		// Older setup tokens die with the secret they were minted for.
		if err := s.Store.SetupTokens().DeleteForUser(ctx, user.ID); err != nil {
			return domain.SetupChallenge{}, fmt.Errorf("purge setup tokens: %w", err)
		}

		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return domain.SetupChallenge{}, err
		}
		record := domain.SetupToken{
			ID:        idx.New().String(),
			UserID:    user.ID,
			TokenHash: cryptox.FingerprintToken(opaque),
			ExpiresAt: time.Now().UTC().Add(s.setupTokenTTL()),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.Store.SetupTokens().Create(ctx, record); err != nil {
			return domain.SetupChallenge{}, fmt.Errorf("store setup token: %w", err)
		}
		challenge.SetupToken = opaque
	}

	slogx.FromContext(ctx).Info("totp setup initiated",
		"user_id", user.ID, "setup_version", version)

	return challenge, nil
}

// ResolveSetupToken exchanges an opaque setup token for its user. Expired or
// unknown tokens surface as ErrSetupTokenInvalid.
func (s *TOTPService) ResolveSetupToken(ctx context.Context, token string) (domain.User, error) {
	record, err := s.Store.SetupTokens().GetActiveByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrSetupTokenInvalid
		}
		return domain.User{}, fmt.Errorf("lookup setup token: %w", err)
	}

	user, err := s.Store.Users().GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrSetupTokenInvalid
		}
		return domain.User{}, fmt.Errorf("lookup setup token user: %w", err)
	}
	return user, nil
}

// VerifySetup validates code against the current pending secret and, on
// success, atomically persists the secret, enables TOTP, and issues a fresh
// batch of backup codes (returned in plaintext exactly once). The
// version-conditioned delete decides races: only one concurrent
// verification can win, the loser sees ErrSetupConflict.
func (s *TOTPService) VerifySetup(
	ctx context.Context,
	user domain.User,
	code string,
) ([]string, error) {
	if user.Locked(time.Now().UTC()) {
		return nil, ErrAccountLocked
	}
	if user.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	pending, err := s.Store.PendingSetups().GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoPendingSetup
		}
		return nil, fmt.Errorf("lookup pending setup: %w", err)
	}

	now := time.Now().UTC()
	if pending.Expired(now) {
		_ = s.Store.PendingSetups().Delete(ctx, user.ID)
		return nil, ErrNoPendingSetup
	}

	step, ok := matchTOTPStep(pending.Secret, code, now)
	if !ok {
		// No enrollment state mutates on a bad code.
		return nil, ErrInvalidTOTPCode
	}

	plaintext := make([]string, backupCodeCount)
	for i := range plaintext {
		c, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		plaintext[i] = c
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		won, err := tx.PendingSetups().DeleteVersion(ctx, user.ID, pending.SetupVersion)
		if err != nil {
			return fmt.Errorf("consume pending setup: %w", err)
		}
		if !won {
			return ErrSetupConflict
		}

		if err := tx.Users().EnableTOTP(ctx, user.ID, pending.Secret); err != nil {
			return fmt.Errorf("enable totp: %w", err)
		}

		// The enrollment code counts as used; it cannot double as the first
		// login code.
		if _, err := tx.Users().ConsumeTOTPStep(ctx, user.ID, step); err != nil {
			return fmt.Errorf("record totp step: %w", err)
		}

		if err := tx.BackupCodes().DeleteAll(ctx, user.ID); err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}
		for _, c := range plaintext {
			if err := tx.BackupCodes().Create(ctx, user.ID, cryptox.FingerprintToken(c)); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}

		return tx.SetupTokens().DeleteForUser(ctx, user.ID)
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("totp enabled", "user_id", user.ID)
	return plaintext, nil
}

// ValidateLogin checks a login-time code against the user's enrolled secret
// with a ±1 step tolerance, then consumes the matched step so the same code
// (or any code for an earlier step) cannot be accepted again.
func (s *TOTPService) ValidateLogin(ctx context.Context, user domain.User, code string) error {
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return ErrInvalidTOTPCode
	}

	step, ok := matchTOTPStep(*user.TOTPSecret, code, time.Now().UTC())
	if !ok {
		return ErrInvalidTOTPCode
	}

	fresh, err := s.Store.Users().ConsumeTOTPStep(ctx, user.ID, step)
	if err != nil {
		return fmt.Errorf("consume totp step: %w", err)
	}
	if !fresh {
		slogx.FromContext(ctx).Warn("totp code replay rejected", "user_id", user.ID)
		return ErrInvalidTOTPCode
	}
	return nil
}

// ValidateBackupCode consumes a single-use backup code. The conditional
// delete guarantees that concurrent submissions of the same code cannot
// both succeed.
func (s *TOTPService) ValidateBackupCode(ctx context.Context, user domain.User, code string) error {
	if !user.TOTPEnabled {
		return ErrInvalidBackupCode
	}

	hash := cryptox.FingerprintToken(cryptox.NormalizeBackupCode(code))
	used, err := s.Store.BackupCodes().Consume(ctx, user.ID, hash)
	if err != nil {
		return fmt.Errorf("consume backup code: %w", err)
	}
	if !used {
		return ErrInvalidBackupCode
	}

	if remaining, err := s.Store.BackupCodes().Count(ctx, user.ID); err == nil && remaining == 0 {
		slogx.FromContext(ctx).Warn("last backup code consumed", "user_id", user.ID)
	}
	return nil
}

// RegenerateBackupCodes replaces the full batch after verifying a fresh
// TOTP code. Returned in plaintext exactly once.
func (s *TOTPService) RegenerateBackupCodes(
	ctx context.Context,
	user domain.User,
	code string,
) ([]string, error) {
	if user.Locked(time.Now().UTC()) {
		return nil, ErrAccountLocked
	}
	if err := s.ValidateLogin(ctx, user, code); err != nil {
		return nil, err
	}

	plaintext := make([]string, backupCodeCount)
	for i := range plaintext {
		c, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		plaintext[i] = c
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAll(ctx, user.ID); err != nil {
			return err
		}
		for _, c := range plaintext {
			if err := tx.BackupCodes().Create(ctx, user.ID, cryptox.FingerprintToken(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace backup codes: %w", err)
	}

	return plaintext, nil
}

// Reset clears the user's enrollment (secret, flag, backup codes, pending
// state) and behaves like a fresh InitiateSetup. Callers must have
// re-proved the password first; a stolen session alone cannot re-enroll an
// authenticator.
func (s *TOTPService) Reset(ctx context.Context, user domain.User) (domain.SetupChallenge, error) {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableTOTP(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAll(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.PendingSetups().Delete(ctx, user.ID); err != nil {
			return err
		}
		return tx.SetupTokens().DeleteForUser(ctx, user.ID)
	})
	if err != nil {
		return domain.SetupChallenge{}, fmt.Errorf("reset totp: %w", err)
	}

	slogx.FromContext(ctx).Info("totp reset", "user_id", user.ID)

	user.TOTPEnabled = false
	user.TOTPSecret = nil
	return s.InitiateSetup(ctx, user, true)
}

func (s *TOTPService) setupTTL() time.Duration {
	if s.SetupTTL > 0 {
		return s.SetupTTL
	}
	return DefaultSetupTTL
}

func (s *TOTPService) setupTokenTTL() time.Duration {
	if s.SetupTokenTTL > 0 {
		return s.SetupTokenTTL
	}
	return DefaultSetupTokenTTL
}

// matchTOTPStep reports which time step (if any) within the tolerance
// window produced code. Knowing the exact step, not just validity, is what
// makes the replay check possible.
func matchTOTPStep(secret, code string, now time.Time) (int64, bool) {
	current := now.Unix() / totpPeriod
	for _, offset := range []int64{0, -totpSkew, totpSkew} {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), totp.ValidateOpts{
			Period:    totpPeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}
