package domain

import "time"

// Tenant is one customer organisation. Usernames are unique only inside a
// tenant, so every identity lookup starts from one of these.
type Tenant struct {
	ID         string
	ClientCode string // short login-time identifier, unique across tenants
	Name       string
	Active     bool // deactivated tenants keep their data but cannot log in
	UserQuota  int  // 0 means unlimited
	AssetQuota int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
