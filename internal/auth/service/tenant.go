package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/slogx"
)

const maxClientCodeLength = 32

type TenantService struct {
	Store store.Store
}

// Resolve maps a client code to its tenant. Malformed codes, unknown codes,
// and inactive tenants all surface as ErrTenantNotFound so a caller cannot
// distinguish a deactivated tenant from a nonexistent one.
func (s *TenantService) Resolve(ctx context.Context, clientCode string) (domain.Tenant, error) {
	clientCode = strings.TrimSpace(clientCode)
	if !validClientCode(clientCode) {
		return domain.Tenant{}, ErrTenantNotFound
	}

	tenant, err := s.Store.Tenants().GetByClientCode(ctx, clientCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Tenant{}, ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("resolve tenant: %w", err)
	}

	if !tenant.Active {
		// Logged for operators; the caller sees the same error as a miss.
		slogx.FromContext(ctx).Info("login attempt against inactive tenant", "tenant_id", tenant.ID)
		return domain.Tenant{}, ErrTenantNotFound
	}

	return tenant, nil
}

func validClientCode(code string) bool {
	if code == "" || len(code) > maxClientCodeLength {
		return false
	}
	for _, r := range code {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
