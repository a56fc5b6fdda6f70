package domain

import "time"

// Role is a user's role within their tenant.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// RequiresTOTP reports whether the role mandates two-factor enrollment
// before a full session may be issued.
func (r Role) RequiresTOTP() bool {
	return r == RoleSuperadmin
}

// CanEnrollTOTP reports whether the role may enroll in two-factor auth.
func (r Role) CanEnrollTOTP() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

type User struct {
	ID           string
	TenantID     string
	Username     string // unique within the tenant, not globally
	PasswordHash string // argon2id PHC string
	Role         Role

	TOTPEnabled bool
	// TOTPSecret is set only after a setup has been verified; an abandoned
	// initiation never writes here.
	TOTPSecret *string
	// LastTOTPStep is the most recent accepted 30s time step. Codes for this
	// step or earlier are replays.
	LastTOTPStep int64

	FailedAttempts int
	LockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account is inside a lockout cooldown at now.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Summary is the client-facing projection of a user. Never includes hashes
// or secrets.
type Summary struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	TOTPEnabled bool   `json:"totp_enabled"`
}

// Summarize builds the client-facing view of u.
func (u User) Summarize() Summary {
	return Summary{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Username:    u.Username,
		Role:        u.Role,
		TOTPEnabled: u.TOTPEnabled,
	}
}
