package sqlite

import (
	"context"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
)

type pendingSetupsRepo struct {
	q querier
}

// Upsert bumps setup_version in the same statement that replaces the
// secret, so there is never a window where an old secret coexists with a
// new version number.
func (r *pendingSetupsRepo) Upsert(
	ctx context.Context,
	userID, secret string,
	expiresAt time.Time,
) (int64, error) {
	row := r.q.QueryRowContext(ctx,
		`INSERT INTO pending_totp_setups (user_id, secret, setup_version, created_at, expires_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     secret = excluded.secret,
		     setup_version = pending_totp_setups.setup_version + 1,
		     created_at = excluded.created_at,
		     expires_at = excluded.expires_at
		 RETURNING setup_version`,
		userID, secret, time.Now().UTC(), expiresAt)

	var version int64
	if err := row.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *pendingSetupsRepo) GetByUserID(ctx context.Context, userID string) (domain.PendingTOTPSetup, error) {
	var p domain.PendingTOTPSetup
	row := r.q.QueryRowContext(ctx,
		`SELECT user_id, secret, setup_version, created_at, expires_at
		 FROM pending_totp_setups WHERE user_id = ?`, userID)
	if err := row.Scan(&p.UserID, &p.Secret, &p.SetupVersion, &p.CreatedAt, &p.ExpiresAt); err != nil {
		return domain.PendingTOTPSetup{}, mapNotFound(err)
	}
	return p, nil
}

// DeleteVersion is the verification race decider: rows affected tells the
// caller whether it consumed the current version or lost to a re-initiation
// or a concurrent verify.
func (r *pendingSetupsRepo) DeleteVersion(ctx context.Context, userID string, version int64) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM pending_totp_setups WHERE user_id = ? AND setup_version = ?`,
		userID, version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *pendingSetupsRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM pending_totp_setups WHERE user_id = ?`, userID)
	return err
}

func (r *pendingSetupsRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM pending_totp_setups WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
