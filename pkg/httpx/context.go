package httpx

import "context"

// Principal is the verified identity attached to a request after the bearer
// token passes the access gate.
type Principal struct {
	UserID        string
	TenantID      string
	Role          string
	Username      string
	TOTPSatisfied bool
}

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext returns the request principal, if authenticated.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
