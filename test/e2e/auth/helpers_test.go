package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	httpapi "github.com/opsdeskhq/opsdesk/internal/auth/http"
	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/internal/auth/store/drivers/sqlite"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// End-to-end tests run the full router in-process over httptest: real
// store, real rate limits, real tokens. Each test gets its own server and
// database.

const testIssuer = "opsdesk-auth-test"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "opsdesk-e2e")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()

	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testEnv struct {
	Server    *httptest.Server
	Store     *sqlite.Store
	Provision *service.ProvisionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	keys, err := jwtx.NewEphemeralKeyPair(testIssuer)
	require.NoError(t, err)

	totpSvc := &service.TOTPService{Store: st, Issuer: testIssuer}
	login := &service.LoginService{
		Tenants: &service.TenantService{Store: st},
		Creds:   &service.CredentialService{Store: st},
		TOTP:    totpSvc,
		Sessions: &service.SessionService{
			Signer: keys,
			Issuer: testIssuer,
			TTL:    time.Hour,
		},
	}
	provision := &service.ProvisionService{Store: st}

	logger := slogx.New(slogx.Config{
		Service: "opsdesk-auth",
		Version: "test",
		Env:     "test",
		Level:   "error",
		Format:  "text",
	})

	router := httpapi.NewRouter(keys, "test", st, logger)
	router.LoginService = login
	router.UserService = &service.UserService{Store: st}
	router.TOTPService = totpSvc
	router.ProvisionService = provision
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{Server: srv, Store: st, Provision: provision}
}

// seedTenantAndUser provisions a tenant and user through the same service
// the admin endpoints use.
func (e *testEnv) seedTenantAndUser(t *testing.T, clientCode, username, password, role string) {
	t.Helper()
	ctx := context.Background()

	if _, err := e.Store.Tenants().GetByClientCode(ctx, clientCode); err != nil {
		_, err := e.Provision.CreateTenant(ctx, service.CreateTenantInput{ClientCode: clientCode})
		require.NoError(t, err)
	}
	_, err := e.Provision.CreateUser(ctx, service.CreateUserInput{
		ClientCode: clientCode,
		Username:   username,
		Password:   password,
		Role:       role,
	})
	require.NoError(t, err)
}

// request issues an HTTP call and decodes the JSON body into a generic map.
// clientIP feeds X-Forwarded-For so tests control their rate limit bucket.
func (e *testEnv) request(t *testing.T, method, path, token, clientIP string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	resp, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func (e *testEnv) login(t *testing.T, clientIP string, body map[string]any) (int, map[string]any) {
	t.Helper()
	return e.request(t, http.MethodPost, "/api/auth/login", "", clientIP, body)
}

// totpCode computes the code an authenticator would show for secret at t.
func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func uniqueIP(n int) string {
	return fmt.Sprintf("203.0.113.%d", n%250+1)
}
