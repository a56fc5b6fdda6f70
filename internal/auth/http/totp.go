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

// TOTPHandler serves the session-authenticated enrollment endpoints.
type TOTPHandler struct {
	UserService *service.UserService
	TOTPService *service.TOTPService
}

// principalUser loads the caller's account record. Every mutation below
// works on current store state, not on claims frozen at token issuance.
func (h *TOTPHandler) principalUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	ctx := r.Context()
	p, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return domain.User{}, false
	}
	user, err := h.UserService.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusUnauthorized,
				"invalid_token", "Authentication required.")
			return domain.User{}, false
		}
		writeServiceError(w, slogx.FromContext(ctx), err)
		return domain.User{}, false
	}
	if user.TenantID != p.TenantID {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return domain.User{}, false
	}
	return user, true
}

// HandleSetup handles POST /api/auth/setup-totp. Returns the otpauth://
// payload and secret. No setup token is minted; the session itself
// authorizes completion.
func (h *TOTPHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.principalUser(w, r)
	if !ok {
		return
	}

	challenge, err := h.TOTPService.InitiateSetup(ctx, user, false)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, challenge)
}

type verifySetupRequest struct {
	TOTPCode string `json:"totp_code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// HandleVerifySetup handles POST /api/auth/verify-totp-setup. On success
// enrollment is enabled and the backup codes are returned, plaintext,
// exactly once.
func (h *TOTPHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.principalUser(w, r)
	if !ok {
		return
	}

	var req verifySetupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TOTPCode == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "totp_code is required.")
		return
	}

	codes, err := h.TOTPService.VerifySetup(ctx, user, req.TOTPCode)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	log.Info("totp enrollment completed", "user_id", user.ID)
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

// HandleStatus handles GET /api/auth/totp-status.
func (h *TOTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	status, err := h.UserService.GetTOTPStatus(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusUnauthorized,
				"invalid_token", "Authentication required.")
			return
		}
		writeServiceError(w, slogx.FromContext(ctx), err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, status)
}

type regenerateBackupCodesRequest struct {
	TOTPCode string `json:"totp_code"`
}

// HandleRegenerateBackupCodes handles POST /api/auth/backup-codes. A fresh
// TOTP code is required; a hijacked session alone cannot drain the batch.
func (h *TOTPHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	user, ok := h.principalUser(w, r)
	if !ok {
		return
	}

	var req regenerateBackupCodesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TOTPCode == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "totp_code is required.")
		return
	}

	codes, err := h.TOTPService.RegenerateBackupCodes(ctx, user, req.TOTPCode)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	log.Info("backup codes regenerated", "user_id", user.ID)
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}
