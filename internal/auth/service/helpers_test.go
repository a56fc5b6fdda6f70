package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "opsdesk-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()

	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func seedTenant(t *testing.T, st *sqlite.Store, clientCode string) domain.Tenant {
	t.Helper()

	tenant := domain.Tenant{
		ID:         idx.New().String(),
		ClientCode: clientCode,
		Name:       clientCode,
		Active:     true,
		UserQuota:  50,
		AssetQuota: 500,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.Tenants().Create(context.Background(), tenant))
	return tenant
}

func seedUser(t *testing.T, st *sqlite.Store, tenant domain.Tenant, username, password string, role domain.Role) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenant.ID,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.Users().Create(context.Background(), user))
	return user
}

// codeAt generates the 6-digit code a real authenticator would show for
// secret at the given time.
func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func newLoginService(t *testing.T, st *sqlite.Store) *LoginService {
	t.Helper()

	keys, err := jwtx.NewEphemeralKeyPair("test-issuer")
	require.NoError(t, err)

	return &LoginService{
		Tenants: &TenantService{Store: st},
		Creds:   &CredentialService{Store: st},
		TOTP:    &TOTPService{Store: st, Issuer: "test-issuer"},
		Sessions: &SessionService{
			Signer: keys,
			Issuer: "test-issuer",
			TTL:    time.Hour,
		},
	}
}
