package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row.Scan)
}

func (r *usersRepo) GetByTenantAndUsername(ctx context.Context, tenantID, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND username = ?`,
		tenantID, username)
	return scanUser(row.Scan)
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, username, password_hash, role,
			totp_enabled, totp_secret, last_totp_step,
			failed_attempts, locked_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Username, u.PasswordHash, string(u.Role),
		boolInt(u.TOTPEnabled), nullString(u.TOTPSecret), u.LastTOTPStep,
		u.FailedAttempts, nullTime(u.LockedUntil), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
}

// RegisterFailure is a single conditional UPDATE so two racing failures
// cannot each read a stale counter: the lockout is set in the same statement
// that crosses the threshold.
func (r *usersRepo) RegisterFailure(
	ctx context.Context,
	userID string,
	threshold int,
	lockUntil time.Time,
) (int, *time.Time, error) {
	row := r.q.QueryRowContext(ctx,
		`UPDATE users
		 SET failed_attempts = failed_attempts + 1,
		     locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END,
		     updated_at = ?
		 WHERE id = ?
		 RETURNING failed_attempts, locked_until`,
		threshold, lockUntil, time.Now().UTC(), userID)

	var (
		count  int
		locked sql.NullTime
	)
	if err := row.Scan(&count, &locked); err != nil {
		return 0, nil, mapNotFound(err)
	}
	return count, timePtr(locked), nil
}

func (r *usersRepo) ClearFailures(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID, secret string) error {
	return r.exec(ctx,
		`UPDATE users SET totp_enabled = 1, totp_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), userID)
}

func (r *usersRepo) DisableTOTP(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users
		 SET totp_enabled = 0, totp_secret = NULL, last_totp_step = 0, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), userID)
}

// ConsumeTOTPStep only advances the stored step, so a code for the same or
// an earlier step can never be accepted twice, even under concurrency.
func (r *usersRepo) ConsumeTOTPStep(ctx context.Context, userID string, step int64) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET last_totp_step = ?, updated_at = ? WHERE id = ? AND last_totp_step < ?`,
		step, time.Now().UTC(), userID, step)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
