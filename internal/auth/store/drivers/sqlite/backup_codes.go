package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) Create(ctx context.Context, userID, codeHash string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
		userID, codeHash, time.Now().UTC())
	return err
}

// Consume deletes by (user, hash); the row count is the single-use check.
func (r *backupCodesRepo) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *backupCodesRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}
