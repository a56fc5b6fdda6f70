package service

import (
	"context"
	"testing"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestLoginWithoutTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "031210")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)

	grant, err := svc.Login(ctx, LoginInput{
		ClientCode: "031210",
		Username:   "admin",
		Password:   "admin123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.AccessToken)
	require.Equal(t, "Bearer", grant.TokenType)
	require.Equal(t, "admin", grant.User.Username)
	require.Equal(t, domain.RoleAdmin, grant.User.Role)
}

func TestLoginRejectsUnknownTenantAndBadPassword(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "alice", "correct horse", domain.RoleUser)

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "nope", Username: "alice", Password: "correct horse"})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "bob", Password: "whatever"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive tenant looks like a missing one", func(t *testing.T) {
		require.NoError(t, st.Tenants().SetActive(ctx, tenant.ID, false))
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "correct horse"})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})
}

func TestLoginTenantIsolation(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	t1 := seedTenant(t, st, "tenant-one")
	t2 := seedTenant(t, st, "tenant-two")
	seedUser(t, st, t1, "admin", "password-one", domain.RoleAdmin)
	seedUser(t, st, t2, "admin", "password-two", domain.RoleAdmin)

	// Same username, other tenant's password: must not cross over.
	_, err := svc.Login(ctx, LoginInput{ClientCode: "tenant-one", Username: "admin", Password: "password-two"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	grant, err := svc.Login(ctx, LoginInput{ClientCode: "tenant-one", Username: "admin", Password: "password-one"})
	require.NoError(t, err)
	require.Equal(t, t1.ID, grant.User.TenantID)
}

func TestLoginSuperadminMustEnroll(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "031210")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleSuperadmin)

	// Valid credentials, no enrollment: never a token, only a setup token.
	_, err := svc.Login(ctx, LoginInput{
		ClientCode: "031210",
		Username:   "admin",
		Password:   "admin123",
	})
	var setupErr *SetupRequiredError
	require.ErrorAs(t, err, &setupErr)
	require.NotEmpty(t, setupErr.SetupToken)
	require.Equal(t, "admin", setupErr.User.Username)

	// Complete enrollment via the login-time path.
	challenge, err := svc.SetupLogin(ctx, "031210", "admin", "admin123")
	require.NoError(t, err)
	require.NotEmpty(t, challenge.Secret)
	require.NotEmpty(t, challenge.QRCode)
	require.NotEmpty(t, challenge.SetupToken)

	codes, err := svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		SetupToken: challenge.SetupToken,
		TOTPCode:   codeAt(t, challenge.Secret, time.Now()),
	})
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)

	// The enrollment code is spent; a login replaying it must fail.
	_, err = svc.Login(ctx, LoginInput{
		ClientCode: "031210",
		Username:   "admin",
		Password:   "admin123",
		TOTPCode:   codeAt(t, challenge.Secret, time.Now()),
	})
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	// A code for the next step succeeds.
	grant, err := svc.Login(ctx, LoginInput{
		ClientCode: "031210",
		Username:   "admin",
		Password:   "admin123",
		TOTPCode:   codeAt(t, challenge.Secret, time.Now().Add(totpPeriod*time.Second)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.AccessToken)
}

func TestLoginEnrolledUserNeedsCode(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	secret, _ := enrollViaLogin(t, svc, "acme", "admin", "admin123")

	_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "admin", Password: "admin123"})
	require.ErrorIs(t, err, ErrTOTPRequired)

	grant, err := svc.Login(ctx, LoginInput{
		ClientCode: "acme",
		Username:   "admin",
		Password:   "admin123",
		TOTPCode:   codeAt(t, secret, time.Now().Add(totpPeriod*time.Second)),
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.AccessToken)
}

func TestLoginTOTPReplayRejected(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	secret, _ := enrollViaLogin(t, svc, "acme", "admin", "admin123")

	code := codeAt(t, secret, time.Now().Add(totpPeriod*time.Second))

	_, err := svc.Login(ctx, LoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123", TOTPCode: code,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123", TOTPCode: code,
	})
	require.ErrorIs(t, err, ErrInvalidTOTPCode)
}

func TestLoginBackupCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	_, codes := enrollViaLogin(t, svc, "acme", "admin", "admin123")
	require.NotEmpty(t, codes)

	grant, err := svc.Login(ctx, LoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123", BackupCode: codes[0],
	})
	require.NoError(t, err)
	require.NotEmpty(t, grant.AccessToken)

	_, err = svc.Login(ctx, LoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123", BackupCode: codes[0],
	})
	require.ErrorIs(t, err, ErrInvalidBackupCode)

	// The rest of the batch is still live.
	_, err = svc.Login(ctx, LoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123", BackupCode: codes[1],
	})
	require.NoError(t, err)
}

func TestLoginSharedLockoutCounter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	secret, _ := enrollViaLogin(t, svc, "acme", "admin", "admin123")

	// Password failures and bad one-time codes share one counter.
	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "admin", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, LoginInput{
			ClientCode: "acme", Username: "admin", Password: "admin123", TOTPCode: "000000",
		})
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
	}

	// Fifth failure tripped the lockout; even a fully valid login is
	// refused until the cooldown passes.
	_, err := svc.Login(ctx, LoginInput{
		ClientCode: "acme",
		Username:   "admin",
		Password:   "admin123",
		TOTPCode:   codeAt(t, secret, time.Now().Add(totpPeriod*time.Second)),
	})
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestLoginCodeGuessingWithCorrectPasswordLocks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	secret, _ := enrollViaLogin(t, svc, "acme", "admin", "admin123")

	// A correct password must not wipe the counter between guesses; pure
	// code guessing locks the account just like password guessing.
	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, LoginInput{
			ClientCode: "acme", Username: "admin", Password: "admin123", TOTPCode: "000000",
		})
		require.ErrorIs(t, err, ErrInvalidTOTPCode)
	}

	_, err := svc.Login(ctx, LoginInput{
		ClientCode: "acme",
		Username:   "admin",
		Password:   "admin123",
		TOTPCode:   codeAt(t, secret, time.Now().Add(totpPeriod*time.Second)),
	})
	require.ErrorIs(t, err, ErrAccountLocked)
}

func TestSetupTokenHonorsLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	user := seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)

	challenge, err := svc.SetupLogin(ctx, "acme", "admin", "admin123")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "admin", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// A setup token minted before the lockout cannot sidestep the cooldown,
	// even with a correct code.
	_, err = svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		SetupToken: challenge.SetupToken,
		TOTPCode:   codeAt(t, challenge.Secret, time.Now()),
	})
	require.ErrorIs(t, err, ErrAccountLocked)

	got, err := st.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.TOTPEnabled)
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	user := seedUser(t, st, tenant, "alice", "secret-pass", domain.RoleUser)

	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "secret-pass"})
	require.NoError(t, err)

	got, err := st.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedAttempts)

	// The slate is clean: four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, err := svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = svc.Login(ctx, LoginInput{ClientCode: "acme", Username: "alice", Password: "secret-pass"})
	require.NoError(t, err)
}

func TestReinitiatedSetupInvalidatesEarlierSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)

	first, err := svc.SetupLogin(ctx, "acme", "admin", "admin123")
	require.NoError(t, err)
	second, err := svc.SetupLogin(ctx, "acme", "admin", "admin123")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// The first secret can never complete enrollment once superseded.
	_, err = svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		ClientCode: "acme", Username: "admin", Password: "admin123",
		TOTPCode: codeAt(t, first.Secret, time.Now()),
	})
	require.ErrorIs(t, err, ErrInvalidTOTPCode)

	// The first setup token died with its secret.
	_, err = svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		SetupToken: first.SetupToken,
		TOTPCode:   codeAt(t, second.Secret, time.Now()),
	})
	require.ErrorIs(t, err, ErrSetupTokenInvalid)

	codes, err := svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		SetupToken: second.SetupToken,
		TOTPCode:   codeAt(t, second.Secret, time.Now()),
	})
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)
}

func TestResetLoginStartsOver(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newLoginService(t, st)

	tenant := seedTenant(t, st, "acme")
	user := seedUser(t, st, tenant, "admin", "admin123", domain.RoleAdmin)
	enrollViaLogin(t, svc, "acme", "admin", "admin123")

	challenge, err := svc.ResetLogin(ctx, "acme", "admin", "admin123")
	require.NoError(t, err)
	require.NotEmpty(t, challenge.Secret)
	require.NotEmpty(t, challenge.SetupToken)

	got, err := st.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.TOTPEnabled)
	require.Nil(t, got.TOTPSecret)

	remaining, err := st.BackupCodes().Count(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, remaining)
}

// enrollViaLogin walks the login-time enrollment flow and returns the
// enrolled secret and the plaintext backup codes.
func enrollViaLogin(t *testing.T, svc *LoginService, clientCode, username, password string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	challenge, err := svc.SetupLogin(ctx, clientCode, username, password)
	require.NoError(t, err)

	codes, err := svc.VerifySetupLogin(ctx, VerifySetupLoginInput{
		SetupToken: challenge.SetupToken,
		TOTPCode:   codeAt(t, challenge.Secret, time.Now()),
	})
	require.NoError(t, err)
	return challenge.Secret, codes
}
