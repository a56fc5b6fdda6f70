package service

import (
	"context"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetByID(ctx, userID)
}

// TOTPStatus describes the user's enrollment state for the status endpoint.
type TOTPStatus struct {
	TOTPEnabled       bool `json:"totp_enabled"`
	TOTPSetupRequired bool `json:"totp_setup_required"`
}

// GetTOTPStatus reports whether the user is enrolled and whether their role
// still demands enrollment.
func (s *UserService) GetTOTPStatus(ctx context.Context, userID string) (TOTPStatus, error) {
	user, err := s.Store.Users().GetByID(ctx, userID)
	if err != nil {
		return TOTPStatus{}, err
	}
	return TOTPStatus{
		TOTPEnabled:       user.TOTPEnabled,
		TOTPSetupRequired: user.Role.RequiresTOTP() && !user.TOTPEnabled,
	}, nil
}
