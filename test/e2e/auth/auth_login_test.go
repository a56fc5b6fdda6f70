package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "031210", "admin", "admin123", "admin")

	status, body := env.login(t, "198.51.100.1", map[string]any{
		"client_code": "031210",
		"username":    "admin",
		"password":    "admin123",
	})
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, body["access_token"])
	require.Equal(t, "Bearer", body["token_type"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "admin", user["username"])
	require.Equal(t, "admin", user["role"])
	require.Equal(t, false, user["totp_enabled"])
}

func TestLoginFailuresEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "acme", "alice", "secret-pass", "user")

	t.Run("wrong password", func(t *testing.T) {
		status, body := env.login(t, "198.51.100.2", map[string]any{
			"client_code": "acme", "username": "alice", "password": "nope",
		})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("unknown tenant reads the same", func(t *testing.T) {
		status, body := env.login(t, "198.51.100.3", map[string]any{
			"client_code": "ghost", "username": "alice", "password": "secret-pass",
		})
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("missing fields", func(t *testing.T) {
		status, body := env.login(t, "198.51.100.4", map[string]any{
			"client_code": "acme",
		})
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "invalid_request", body["error"])
	})
}

func TestAccountLockoutEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "acme", "alice", "secret-pass", "user")

	// Five failures from five addresses: the per-IP rate limit never
	// trips, the per-account lockout does.
	for i := 0; i < 5; i++ {
		status, _ := env.login(t, uniqueIP(i), map[string]any{
			"client_code": "acme", "username": "alice", "password": "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := env.login(t, uniqueIP(10), map[string]any{
		"client_code": "acme", "username": "alice", "password": "secret-pass",
	})
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "account_locked", body["error"])
}

func TestLoginRateLimitEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "acme", "alice", "secret-pass", "user")

	// StrictLimit allows five per minute from one address.
	var status int
	for i := 0; i < 6; i++ {
		status, _ = env.login(t, "198.51.100.77", map[string]any{
			"client_code": "acme", "username": "alice", "password": "secret-pass",
		})
	}
	require.Equal(t, http.StatusTooManyRequests, status)
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "acme", "alice", "secret-pass", "user")

	status, body := env.login(t, "198.51.100.5", map[string]any{
		"client_code": "acme", "username": "alice", "password": "secret-pass",
	})
	require.Equal(t, http.StatusOK, status)
	token := body["access_token"].(string)

	t.Run("with token", func(t *testing.T) {
		status, body := env.request(t, http.MethodGet, "/api/auth/me", token, "198.51.100.5", nil)
		require.Equal(t, http.StatusOK, status)
		me := body["user"].(map[string]any)
		require.Equal(t, "alice", me["username"])
		require.Equal(t, "user", me["role"])
	})

	t.Run("without token", func(t *testing.T) {
		status, _ := env.request(t, http.MethodGet, "/api/auth/me", "", "198.51.100.5", nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("garbage token", func(t *testing.T) {
		status, _ := env.request(t, http.MethodGet, "/api/auth/me", "junk", "198.51.100.5", nil)
		require.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestProvisioningRequiresSuperadmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedTenantAndUser(t, "acme", "boss", "admin-pass", "admin")

	status, body := env.login(t, "198.51.100.6", map[string]any{
		"client_code": "acme", "username": "boss", "password": "admin-pass",
	})
	require.Equal(t, http.StatusOK, status)
	adminToken := body["access_token"].(string)

	t.Run("admin is refused", func(t *testing.T) {
		status, body := env.request(t, http.MethodPost, "/api/admin/tenants", adminToken, "198.51.100.6",
			map[string]any{"client_code": "newco"})
		require.Equal(t, http.StatusForbidden, status)
		require.Equal(t, "insufficient_role", body["error"])
	})

	t.Run("superadmin provisions tenant and user", func(t *testing.T) {
		token := superadminToken(t, env, "hq", "root", "root-pass", "198.51.100.7")

		status, created := env.request(t, http.MethodPost, "/api/admin/tenants", token, "198.51.100.7",
			map[string]any{"client_code": "newco", "name": "New Co"})
		require.Equal(t, http.StatusCreated, status)
		require.Equal(t, "newco", created["client_code"])

		status, user := env.request(t, http.MethodPost, "/api/admin/users", token, "198.51.100.7",
			map[string]any{"client_code": "newco", "username": "worker", "password": "w-pass"})
		require.Equal(t, http.StatusCreated, status)
		require.Equal(t, "worker", user["username"])
		require.Equal(t, "user", user["role"])

		// The provisioned user can log in.
		status, _ = env.login(t, "198.51.100.8", map[string]any{
			"client_code": "newco", "username": "worker", "password": "w-pass",
		})
		require.Equal(t, http.StatusOK, status)
	})
}
