package domain

import "time"

// PendingTOTPSetup is an in-flight enrollment. Only the current
// SetupVersion's secret can be verified; re-initiating bumps the version and
// permanently invalidates older secrets, even unexpired ones.
type PendingTOTPSetup struct {
	UserID       string
	Secret       string // base32, not yet trusted
	SetupVersion int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the pending setup has passed its TTL at now.
func (p PendingTOTPSetup) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// SetupToken authorizes completing two-factor enrollment for a user who has
// no full session yet (the login-time setup path). Stored hashed, single
// use, short TTL.
type SetupToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// SetupChallenge is returned when enrollment is initiated: the otpauth://
// provisioning payload for a QR code, the base32 secret for manual entry,
// and (on the login-time path) a setup token.
type SetupChallenge struct {
	Secret     string `json:"secret"`
	QRCode     string `json:"qr_code"`
	SetupToken string `json:"setup_token,omitempty"`
}
