package sqlite

import (
	"context"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
)

type setupTokensRepo struct {
	q querier
}

func (r *setupTokensRepo) Create(ctx context.Context, t domain.SetupToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO setup_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return err
}

func (r *setupTokensRepo) GetActiveByHash(ctx context.Context, hash string) (domain.SetupToken, error) {
	var t domain.SetupToken
	row := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM setup_tokens WHERE token_hash = ? AND expires_at > ?`,
		hash, time.Now().UTC())
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return domain.SetupToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *setupTokensRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM setup_tokens WHERE id = ?`, id)
	return err
}

func (r *setupTokensRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM setup_tokens WHERE user_id = ?`, userID)
	return err
}

func (r *setupTokensRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM setup_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
