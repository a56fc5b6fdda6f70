package domain

// LoginGrant is the terminal success state of the login flow.
type LoginGrant struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"` // "Bearer"
	ExpiresIn   int64   `json:"expires_in"` // seconds
	User        Summary `json:"user"`
}

// TOTPChallenge is emitted when credentials are valid but a one-time code is
// still required. Exactly one of the two flags is set.
type TOTPChallenge struct {
	RequiresTOTP      bool `json:"requires_totp,omitempty"`
	RequiresTOTPSetup bool `json:"requires_totp_setup,omitempty"`

	// Populated only on the setup branch.
	User       *Summary `json:"user,omitempty"`
	SetupToken string   `json:"setup_token,omitempty"`
}
