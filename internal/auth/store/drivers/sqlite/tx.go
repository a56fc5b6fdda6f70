package sqlite

import (
	"context"
	"database/sql"

	"github.com/opsdeskhq/opsdesk/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }

// ApplyMigrations is a no-op inside a transaction; migrations run before
// any transaction starts.
func (t *txStore) ApplyMigrations() error { return nil }

// Nested transactions are not supported.
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Tenants() store.Tenants             { return &tenantsRepo{q: t.tx} }
func (t *txStore) Users() store.Users                 { return &usersRepo{q: t.tx} }
func (t *txStore) PendingSetups() store.PendingSetups { return &pendingSetupsRepo{q: t.tx} }
func (t *txStore) SetupTokens() store.SetupTokens     { return &setupTokensRepo{q: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes     { return &backupCodesRepo{q: t.tx} }
