package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/jwtx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	LoginService     *service.LoginService
	UserService      *service.UserService
	TOTPService      *service.TOTPService
	ProvisionService *service.ProvisionService
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerAccount()
	r.registerEnrollment()
	r.registerProvisioning()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	loginHandler := &LoginHandler{LoginService: r.LoginService}

	// Password and one-time codes are guessable; everything on this path
	// gets the strict per-IP budget on top of the account lockout.
	r.Mux.Handle("POST /api/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	totpLoginHandler := &TOTPLoginHandler{LoginService: r.LoginService}
	r.Mux.Handle("POST /api/auth/setup-totp-login",
		httpx.Chain(http.HandlerFunc(totpLoginHandler.HandleSetup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/verify-totp-setup-login",
		httpx.Chain(http.HandlerFunc(totpLoginHandler.HandleVerifySetup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /api/auth/reset-totp-login",
		httpx.Chain(http.HandlerFunc(totpLoginHandler.HandleReset),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAccount() {
	meHandler := &MeHandler{UserService: r.UserService}

	r.Mux.Handle("GET /api/auth/me",
		httpx.Chain(meHandler,
			httpx.AccessGate(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerEnrollment() {
	h := &TOTPHandler{
		UserService: r.UserService,
		TOTPService: r.TOTPService,
	}

	r.Mux.Handle("POST /api/auth/setup-totp",
		httpx.Chain(http.HandlerFunc(h.HandleSetup),
			httpx.AccessGate(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// Code verification gets the strict budget; six digits brute-force fast.
	r.Mux.Handle("POST /api/auth/verify-totp-setup",
		httpx.Chain(http.HandlerFunc(h.HandleVerifySetup),
			httpx.AccessGate(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("GET /api/auth/totp-status",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.AccessGate(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /api/auth/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			httpx.AccessGate(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerProvisioning() {
	h := &ProvisionHandler{ProvisionService: r.ProvisionService}

	superadmin := string(domain.RoleSuperadmin)

	r.Mux.Handle("POST /api/admin/tenants",
		httpx.Chain(http.HandlerFunc(h.HandleCreateTenant),
			httpx.AccessGate(r.verifier),
			httpx.RequireRole(superadmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /api/admin/users",
		httpx.Chain(http.HandlerFunc(h.HandleCreateUser),
			httpx.AccessGate(r.verifier),
			httpx.RequireRole(superadmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
