package authz

import (
	"context"
	"errors"
)

// Domain errors
var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrBindingNotFound    = errors.New("role binding not found")
)

// Permission is a named capability identified by a free-form code,
// e.g. "MANAGE_USERS" or "COMPONENT:AdminPanel".
type Permission struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// GlobalRole is a system-wide named bundle of permissions. It is not
// tenant-scoped: the same role grants the same permissions in any tenant.
type GlobalRole struct {
	ID          string       `json:"id"`
	Name        RoleName     `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	Active      bool         `json:"active"`
}

// UserTenantRole binds a user to a role set inside one tenant. At most one
// binding exists per (user, tenant) pair; re-assignment overwrites the role
// set rather than appending.
type UserTenantRole struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	TenantID string       `json:"tenant_id"`
	Roles    []GlobalRole `json:"roles"`
}

// HasRole reports whether the binding includes the named role
func (b *UserTenantRole) HasRole(name RoleName) bool {
	for _, r := range b.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleRepository defines the interface for global role persistence
type RoleRepository interface {
	// Create creates a new global role
	Create(ctx context.Context, role *GlobalRole) error

	// GetByName retrieves a role by its catalog name
	GetByName(ctx context.Context, name RoleName) (*GlobalRole, error)

	// ExistsByName reports whether a role with the name exists
	ExistsByName(ctx context.Context, name RoleName) (bool, error)

	// SetPermissions replaces the role's permission set
	SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error

	// ListActive retrieves all active roles with their permissions
	ListActive(ctx context.Context) ([]*GlobalRole, error)
}

// PermissionRepository defines the interface for permission persistence
type PermissionRepository interface {
	// Create creates a new permission
	Create(ctx context.Context, p *Permission) error

	// GetByCode retrieves a permission by its unique code
	GetByCode(ctx context.Context, code string) (*Permission, error)

	// ExistsByCode reports whether a permission with the code exists
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// List retrieves all permissions
	List(ctx context.Context) ([]*Permission, error)
}

// BindingRepository defines the interface for user-tenant-role bindings
type BindingRepository interface {
	// Upsert creates or replaces the binding for (UserID, TenantID)
	Upsert(ctx context.Context, binding *UserTenantRole) error

	// Get retrieves the binding for (userID, tenantID), ErrBindingNotFound if absent
	Get(ctx context.Context, userID, tenantID string) (*UserTenantRole, error)

	// ListByUser retrieves all bindings for a user across tenants
	ListByUser(ctx context.Context, userID string) ([]*UserTenantRole, error)

	// ListByTenant retrieves all bindings within a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*UserTenantRole, error)

	// Delete removes the binding for (userID, tenantID)
	Delete(ctx context.Context, userID, tenantID string) error
}
