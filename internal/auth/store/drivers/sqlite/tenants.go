package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
)

type tenantsRepo struct {
	q querier
}

const tenantColumns = `id, client_code, name, active, user_quota, asset_quota, created_at, updated_at`

func scanTenant(scan func(dest ...any) error) (domain.Tenant, error) {
	var (
		t      domain.Tenant
		active int64
	)
	err := scan(&t.ID, &t.ClientCode, &t.Name, &active, &t.UserQuota, &t.AssetQuota, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	t.Active = active != 0
	return t, nil
}

func (r *tenantsRepo) GetByClientCode(ctx context.Context, clientCode string) (domain.Tenant, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE client_code = ?`, clientCode)
	return scanTenant(row.Scan)
}

func (r *tenantsRepo) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	return scanTenant(row.Scan)
}

func (r *tenantsRepo) Create(ctx context.Context, t domain.Tenant) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tenants (id, client_code, name, active, user_quota, asset_quota, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ClientCode, t.Name, boolInt(t.Active), t.UserQuota, t.AssetQuota, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *tenantsRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE tenants SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), time.Now().UTC(), id)
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

func (r *tenantsRepo) CountUsers(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

func (r *tenantsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
