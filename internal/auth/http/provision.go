package http

import (
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// ProvisionHandler serves the superadmin-only tenant and user creation
// endpoints. Role enforcement happens in the middleware chain.
type ProvisionHandler struct {
	ProvisionService *service.ProvisionService
}

// HandleCreateTenant handles POST /api/admin/tenants.
func (h *ProvisionHandler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req service.CreateTenantInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientCode == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "client_code is required.")
		return
	}

	tenant, err := h.ProvisionService.CreateTenant(ctx, req)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, tenantResponse{
		ID:         tenant.ID,
		ClientCode: tenant.ClientCode,
		Name:       tenant.Name,
		Active:     tenant.Active,
		UserQuota:  tenant.UserQuota,
		AssetQuota: tenant.AssetQuota,
	})
}

type tenantResponse struct {
	ID         string `json:"id"`
	ClientCode string `json:"client_code"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	UserQuota  int    `json:"user_quota"`
	AssetQuota int    `json:"asset_quota"`
}

// HandleCreateUser handles POST /api/admin/users.
func (h *ProvisionHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req service.CreateUserInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientCode == "" || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "client_code, username and password are required.")
		return
	}

	user, err := h.ProvisionService.CreateUser(ctx, req)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, user.Summarize())
}
