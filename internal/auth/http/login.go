package http

import (
	"errors"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

// LoginHandler handles POST /api/auth/login.
type LoginHandler struct {
	LoginService *service.LoginService
}

type loginRequest struct {
	ClientCode string `json:"client_code"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totp_code,omitempty"`
	// twofa_token is the wire name the web client sends; totp_code is
	// accepted as an alias.
	TwoFAToken string `json:"twofa_token,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

func (r loginRequest) code() string {
	if r.TwoFAToken != "" {
		return r.TwoFAToken
	}
	return r.TOTPCode
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientCode == "" || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "client_code, username and password are required.")
		return
	}

	grant, err := h.LoginService.Login(ctx, service.LoginInput{
		ClientCode: req.ClientCode,
		Username:   req.Username,
		Password:   req.Password,
		TOTPCode:   req.code(),
		BackupCode: req.BackupCode,
	})
	if err != nil {
		// The two challenge states are 403s with machine-readable flags so
		// clients can branch without parsing error strings.
		var setupErr *service.SetupRequiredError
		if errors.As(err, &setupErr) {
			user := setupErr.User
			httpx.WriteJSON(w, http.StatusForbidden, domain.TOTPChallenge{
				RequiresTOTPSetup: true,
				User:              &user,
				SetupToken:        setupErr.SetupToken,
			})
			return
		}
		if errors.Is(err, service.ErrTOTPRequired) {
			httpx.WriteJSON(w, http.StatusForbidden, domain.TOTPChallenge{
				RequiresTOTP: true,
			})
			return
		}
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, grant)
}
