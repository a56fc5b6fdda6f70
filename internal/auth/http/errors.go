package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opsdeskhq/opsdesk/internal/auth/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
)

// writeServiceError maps service errors onto the wire. Anything the map
// does not name is a 500; the details stay in the log, never the body.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrInvalidCredentials):
		// Same envelope for unknown tenant, unknown user and bad password
		// so the endpoint cannot be used for enumeration.
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_credentials", "Invalid client code, username or password.")

	case errors.Is(err, service.ErrAccountLocked):
		httpx.WriteError(w, http.StatusTooManyRequests,
			"account_locked", "Too many failed attempts. Try again later.")

	case errors.Is(err, service.ErrInvalidTOTPCode),
		errors.Is(err, service.ErrInvalidBackupCode):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_code", "The one-time code is not valid.")

	case errors.Is(err, service.ErrSetupTokenInvalid):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_setup_token", "The setup token is invalid or expired.")

	case errors.Is(err, service.ErrNoPendingSetup):
		httpx.WriteError(w, http.StatusBadRequest,
			"no_pending_setup", "No enrollment is in progress. Start setup first.")

	case errors.Is(err, service.ErrSetupConflict):
		httpx.WriteError(w, http.StatusConflict,
			"setup_conflict", "Enrollment was completed or superseded elsewhere.")

	case errors.Is(err, service.ErrTOTPAlreadyEnabled):
		httpx.WriteError(w, http.StatusBadRequest,
			"totp_already_enabled", "Two-factor authentication is already enabled.")

	case errors.Is(err, service.ErrRoleNotEligible):
		httpx.WriteError(w, http.StatusForbidden,
			"role_not_eligible", "This role cannot enroll in two-factor authentication.")

	case errors.Is(err, service.ErrQuotaExceeded):
		httpx.WriteError(w, http.StatusForbidden,
			"quota_exceeded", "The tenant's user quota has been reached.")

	case errors.Is(err, service.ErrInvalidClientCode):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_client_code", "Client codes are up to 32 letters, digits and dashes.")

	case errors.Is(err, service.ErrTenantExists):
		httpx.WriteError(w, http.StatusConflict,
			"tenant_exists", "A tenant with this client code already exists.")

	case errors.Is(err, service.ErrUserExists):
		httpx.WriteError(w, http.StatusConflict,
			"user_exists", "A user with this username already exists in the tenant.")

	default:
		log.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "An internal error occurred.")
	}
}

// decodeJSON parses the request body into v, writing the standard
// invalid_request envelope on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Invalid JSON body.")
		return false
	}
	return true
}
