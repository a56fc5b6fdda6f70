package store

import (
	"context"
	"errors"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement it. Sub-repositories keep concerns tidy; the security-sensitive
// mutations (failure counting, setup-version checks, backup-code and
// TOTP-step consumption) are single conditional statements so that racing
// requests cannot both win.
type Store interface {
	Tenants() Tenants
	Users() Users
	PendingSetups() PendingSetups
	SetupTokens() SetupTokens
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. Use it for multi-step operations that must be atomic
	// (e.g. enabling TOTP together with writing backup codes).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tenants interface {
	// GetByClientCode returns a tenant by its login code, active or not;
	// callers decide how inactive tenants surface.
	GetByClientCode(ctx context.Context, clientCode string) (domain.Tenant, error)

	GetByID(ctx context.Context, id string) (domain.Tenant, error)

	Create(ctx context.Context, t domain.Tenant) error

	// SetActive flips the active flag without touching any tenant data.
	SetActive(ctx context.Context, id string, active bool) error

	// CountUsers returns the number of users in a tenant, for quota checks.
	CountUsers(ctx context.Context, tenantID string) (int, error)

	IsEmpty(ctx context.Context) (bool, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (domain.User, error)

	// GetByTenantAndUsername is the login-path lookup; username uniqueness
	// is scoped to the tenant.
	GetByTenantAndUsername(ctx context.Context, tenantID, username string) (domain.User, error)

	Create(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// RegisterFailure atomically increments the shared failure counter and,
	// when the new count reaches threshold, sets locked_until. Returns the
	// new count and lockout, if any.
	RegisterFailure(ctx context.Context, userID string, threshold int, lockUntil time.Time) (int, *time.Time, error)

	// ClearFailures resets the counter and lockout after a success.
	ClearFailures(ctx context.Context, userID string) error

	// EnableTOTP persists the verified secret and flips totp_enabled.
	EnableTOTP(ctx context.Context, userID, secret string) error

	// DisableTOTP clears the secret, the enabled flag, and the replay step.
	DisableTOTP(ctx context.Context, userID string) error

	// ConsumeTOTPStep advances last_totp_step to step only if it is strictly
	// greater than the stored value. Returns false for replays.
	ConsumeTOTPStep(ctx context.Context, userID string, step int64) (bool, error)
}

type PendingSetups interface {
	// Upsert writes a fresh pending secret for the user, bumping
	// setup_version so earlier secrets can never verify. Returns the new
	// version.
	Upsert(ctx context.Context, userID, secret string, expiresAt time.Time) (int64, error)

	GetByUserID(ctx context.Context, userID string) (domain.PendingTOTPSetup, error)

	// DeleteVersion removes the pending setup only if it still has the given
	// version. Returns false when another verification already won.
	DeleteVersion(ctx context.Context, userID string, version int64) (bool, error)

	Delete(ctx context.Context, userID string) error

	DeleteExpired(ctx context.Context) error
}

type SetupTokens interface {
	Create(ctx context.Context, t domain.SetupToken) error

	// GetActiveByHash returns an unexpired setup token by fingerprint.
	GetActiveByHash(ctx context.Context, hash string) (domain.SetupToken, error)

	Delete(ctx context.Context, id string) error

	DeleteForUser(ctx context.Context, userID string) error

	DeleteExpired(ctx context.Context) error
}

type BackupCodes interface {
	Create(ctx context.Context, userID, codeHash string) error

	// Consume deletes the matching code hash; the deletion doubles as the
	// single-use check, so concurrent submissions of the same code cannot
	// both succeed.
	Consume(ctx context.Context, userID, codeHash string) (bool, error)

	DeleteAll(ctx context.Context, userID string) error

	Count(ctx context.Context, userID string) (int, error)
}
