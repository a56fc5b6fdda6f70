// Package sqlite implements the auth store over a single sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"

	_ "modernc.org/sqlite"
)

// querier is the subset of *sql.DB / *sql.Tx the repos need, so the same
// repo code runs inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite has a single writer; one pooled connection also keeps
	// :memory: databases from fragmenting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithTx executes fn within a transaction, committing on nil and rolling
// back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	wrapped := &txStore{tx: tx}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(wrapped); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Tenants() store.Tenants             { return &tenantsRepo{q: s.db} }
func (s *Store) Users() store.Users                 { return &usersRepo{q: s.db} }
func (s *Store) PendingSetups() store.PendingSetups { return &pendingSetupsRepo{q: s.db} }
func (s *Store) SetupTokens() store.SetupTokens     { return &setupTokensRepo{q: s.db} }
func (s *Store) BackupCodes() store.BackupCodes     { return &backupCodesRepo{q: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var (
		u           domain.User
		role        string
		totpEnabled int64
		secret      sql.NullString
		lockedUntil sql.NullTime
	)
	err := scan(
		&u.ID, &u.TenantID, &u.Username, &u.PasswordHash, &role,
		&totpEnabled, &secret, &u.LastTOTPStep,
		&u.FailedAttempts, &lockedUntil,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Role = domain.Role(role)
	u.TOTPEnabled = totpEnabled != 0
	u.TOTPSecret = stringPtr(secret)
	u.LockedUntil = timePtr(lockedUntil)
	return u, nil
}

const userColumns = `id, tenant_id, username, password_hash, role,
	totp_enabled, totp_secret, last_totp_step,
	failed_attempts, locked_until, created_at, updated_at`
