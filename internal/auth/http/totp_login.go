package http

import (
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// TOTPLoginHandler serves the unauthenticated enrollment endpoints used
// when a user must enroll before they can hold a session at all.
type TOTPLoginHandler struct {
	LoginService *service.LoginService
}

type setupLoginRequest struct {
	ClientCode string `json:"client_code"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// HandleSetup handles POST /api/auth/setup-totp-login. Credentials are
// re-proved in full; the response carries a setup token so the follow-up
// verification does not need the password again.
func (h *TOTPLoginHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req setupLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientCode == "" || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "client_code, username and password are required.")
		return
	}

	challenge, err := h.LoginService.SetupLogin(ctx, req.ClientCode, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, challenge)
}

type verifySetupLoginRequest struct {
	ClientCode string `json:"client_code,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	SetupToken string `json:"setup_token,omitempty"`
	TOTPCode   string `json:"totp_code"`
}

// HandleVerifySetup handles POST /api/auth/verify-totp-setup-login. The
// caller proves identity with either the setup token or full credentials.
func (h *TOTPLoginHandler) HandleVerifySetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifySetupLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TOTPCode == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "totp_code is required.")
		return
	}
	if req.SetupToken == "" && (req.ClientCode == "" || req.Username == "" || req.Password == "") {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Provide either setup_token or full credentials.")
		return
	}

	codes, err := h.LoginService.VerifySetupLogin(ctx, service.VerifySetupLoginInput{
		ClientCode: req.ClientCode,
		Username:   req.Username,
		Password:   req.Password,
		SetupToken: req.SetupToken,
		TOTPCode:   req.TOTPCode,
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	// Enrollment done. No session is minted here; the client logs in again
	// with a fresh code.
	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

// HandleReset handles POST /api/auth/reset-totp-login: discards the
// current enrollment after a full password re-proof and starts over.
func (h *TOTPLoginHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req setupLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientCode == "" || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "client_code, username and password are required.")
		return
	}

	challenge, err := h.LoginService.ResetLogin(ctx, req.ClientCode, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	log.Info("totp enrollment reset")
	httpx.WriteJSON(w, http.StatusOK, challenge)
}
