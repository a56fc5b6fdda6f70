package httpx

import "net/http"

// RequireRole rejects requests whose principal does not hold one of the
// listed roles. Must run after AccessGate.
func RequireRole(roles ...string) Middleware {
	want := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		want[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if _, ok := want[p.Role]; !ok {
				WriteError(w, http.StatusForbidden, "insufficient_role", "This action requires a higher role.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
