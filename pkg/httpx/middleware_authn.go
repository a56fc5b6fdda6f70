package httpx

import (
	"net/http"
	"strings"

	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// AccessGate validates the bearer token on every protected request and
// attaches the principal to the request context. TOTP policy is fixed at
// issuance time; the gate only checks signature and expiry.
func AccessGate(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = ContextWithPrincipal(ctx, Principal{
				UserID:        claims.Subject,
				TenantID:      claims.TenantID,
				Role:          claims.Role,
				Username:      claims.Username,
				TOTPSatisfied: claims.TOTPSatisfied,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-style error response for bearer auth failures.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
