package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/auth/domain"
	"github.com/opsdeskhq/opsdesk/internal/auth/store"
	"github.com/opsdeskhq/opsdesk/pkg/cryptox"
	"github.com/opsdeskhq/opsdesk/pkg/idx"
)

const (
	DefaultUserQuota  = 50
	DefaultAssetQuota = 500
)

// ProvisionService creates tenants and users. It backs the superadmin
// provisioning endpoints and the first-run bootstrap.
type ProvisionService struct {
	Store store.Store
}

type CreateTenantInput struct {
	ClientCode string `json:"client_code"`
	Name       string `json:"name"`
	UserQuota  int    `json:"user_quota"`
	AssetQuota int    `json:"asset_quota"`
}

// CreateTenant registers a new tenant. Client codes are normalized to
// lowercase and must be unique across the instance.
func (s *ProvisionService) CreateTenant(ctx context.Context, in CreateTenantInput) (domain.Tenant, error) {
	code := strings.ToLower(strings.TrimSpace(in.ClientCode))
	if !validClientCode(code) {
		return domain.Tenant{}, ErrInvalidClientCode
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = code
	}

	tenant := domain.Tenant{
		ID:         idx.New().String(),
		ClientCode: code,
		Name:       name,
		Active:     true,
		UserQuota:  in.UserQuota,
		AssetQuota: in.AssetQuota,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if tenant.UserQuota <= 0 {
		tenant.UserQuota = DefaultUserQuota
	}
	if tenant.AssetQuota <= 0 {
		tenant.AssetQuota = DefaultAssetQuota
	}

	if err := s.Store.Tenants().Create(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Tenant{}, ErrTenantExists
		}
		return domain.Tenant{}, err
	}

	slog.Info("tenant created", "tenant_id", tenant.ID, "client_code", tenant.ClientCode)
	return tenant, nil
}

type CreateUserInput struct {
	ClientCode string `json:"client_code"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

// CreateUser registers a new user under the tenant identified by client
// code. The tenant's user quota is enforced at creation time.
func (s *ProvisionService) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	code := strings.ToLower(strings.TrimSpace(in.ClientCode))
	tenant, err := s.Store.Tenants().GetByClientCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrTenantNotFound
		}
		return domain.User{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	role := domain.Role(in.Role)
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.User{}, ErrRoleNotEligible
	}

	if tenant.UserQuota > 0 {
		count, err := s.Store.Tenants().CountUsers(ctx, tenant.ID)
		if err != nil {
			return domain.User{}, err
		}
		if count >= tenant.UserQuota {
			return domain.User{}, ErrQuotaExceeded
		}
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenant.ID,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.Store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}

	slog.Info("user created", "user_id", user.ID, "tenant_id", tenant.ID, "role", user.Role)
	return user, nil
}

// BootstrapInput seeds an empty database with an initial tenant and
// superadmin account so the instance can be administered at all.
type BootstrapInput struct {
	ClientCode string
	TenantName string
	Username   string
	Password   string
}

// Bootstrap creates the seed tenant and superadmin if, and only if, the
// store holds no tenants yet. On a populated database it is a no-op.
func (s *ProvisionService) Bootstrap(ctx context.Context, in BootstrapInput) error {
	empty, err := s.Store.Tenants().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	if in.ClientCode == "" || in.Username == "" || in.Password == "" {
		slog.Warn("empty database and no bootstrap credentials configured")
		return nil
	}

	tenant, err := s.CreateTenant(ctx, CreateTenantInput{
		ClientCode: in.ClientCode,
		Name:       in.TenantName,
	})
	if err != nil {
		return err
	}
	_, err = s.CreateUser(ctx, CreateUserInput{
		ClientCode: tenant.ClientCode,
		Username:   in.Username,
		Password:   in.Password,
		Role:       string(domain.RoleSuperadmin),
	})
	if err != nil {
		return err
	}

	slog.Info("bootstrap complete", "client_code", tenant.ClientCode, "username", in.Username)
	return nil
}
