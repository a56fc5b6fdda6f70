package http

import (
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// MeHandler handles GET /api/auth/me, returning the authenticated user's
// current account state from the store rather than echoing token claims.
type MeHandler struct {
	UserService *service.UserService
}

// Same envelope shape as the login grant: the summary sits under "user".
type meResponse struct {
	User domain.Summary `json:"user"`
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	p, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	user, err := h.UserService.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Account deleted since the token was minted.
			httpx.WriteError(w, http.StatusUnauthorized,
				"invalid_token", "Authentication required.")
			return
		}
		writeServiceError(w, log, err)
		return
	}
	// Tenant scoping backstop: a token minted for one tenant must never
	// read another tenant's record, even its own subject's.
	if user.TenantID != p.TenantID {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, meResponse{User: user.Summarize()})
}
