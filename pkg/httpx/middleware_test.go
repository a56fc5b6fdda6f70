package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrdering(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), tag("outer"), tag("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAccessGate(t *testing.T) {
	keys, err := jwtx.NewEphemeralKeyPair("test-issuer")
	require.NoError(t, err)

	var seen Principal
	protected := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusOK)
	}), AccessGate(keys))

	issue := func(role string, totp bool) string {
		claims := jwtx.NewSessionClaims("user-1", "tenant-1", role, "alice", totp,
			[]string{jwtx.AMRPassword}, "test-issuer", time.Hour, time.Now().UTC())
		token, err := keys.Sign(claims)
		require.NoError(t, err)
		return token
	}

	t.Run("valid token attaches principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+issue("admin", true))
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", seen.UserID)
		require.Equal(t, "tenant-1", seen.TenantID)
		require.Equal(t, "admin", seen.Role)
		require.True(t, seen.TOTPSatisfied)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token from another issuer", func(t *testing.T) {
		other, err := jwtx.NewEphemeralKeyPair("other-issuer")
		require.NoError(t, err)
		claims := jwtx.NewSessionClaims("user-1", "tenant-1", "admin", "alice", true,
			nil, "other-issuer", time.Hour, time.Now().UTC())
		token, err := other.Sign(claims)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	keys, err := jwtx.NewEphemeralKeyPair("test-issuer")
	require.NoError(t, err)

	admin := Chain(okHandler(), AccessGate(keys), RequireRole("superadmin"))

	issue := func(role string) string {
		claims := jwtx.NewSessionClaims("user-1", "tenant-1", role, "alice", true,
			nil, "test-issuer", time.Hour, time.Now().UTC())
		token, err := keys.Sign(claims)
		require.NoError(t, err)
		return token
	}

	do := func(role string) int {
		req := httptest.NewRequest(http.MethodPost, "/admin/tenants", nil)
		req.Header.Set("Authorization", "Bearer "+issue(role))
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("superadmin"))
	require.Equal(t, http.StatusForbidden, do("admin"))
	require.Equal(t, http.StatusForbidden, do("user"))
}
