// Copyright 2026 The Keyfold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/id"
)

// Service provides role and permission resolution logic
type Service struct {
	roleRepo    RoleRepository
	permRepo    PermissionRepository
	bindingRepo BindingRepository
	auditLogger audit.Logger
}

// NewService creates a new authorization service
func NewService(
	roleRepo RoleRepository,
	permRepo PermissionRepository,
	bindingRepo BindingRepository,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		roleRepo:    roleRepo,
		permRepo:    permRepo,
		bindingRepo: bindingRepo,
		auditLogger: auditLogger,
	}
}

// InitializeGlobalRoles ensures exactly one role row exists per catalog
// name. Idempotent; safe to call on every startup.
func (s *Service) InitializeGlobalRoles(ctx context.Context) error {
	for _, name := range AllRoleNames {
		exists, err := s.roleRepo.ExistsByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check role %s: %w", name, err)
		}
		if exists {
			continue
		}

		role := &GlobalRole{
			ID:          id.NewUUIDv7(),
			Name:        name,
			Description: name.Description(),
			Active:      true,
		}
		if err := s.roleRepo.Create(ctx, role); err != nil {
			return fmt.Errorf("failed to create role %s: %w", name, err)
		}
	}
	return nil
}

// InitializeDefaultPermissions seeds the default permission catalog.
// Idempotent; existing codes are left untouched.
func (s *Service) InitializeDefaultPermissions(ctx context.Context) error {
	for _, code := range DefaultPermissionCodes {
		exists, err := s.permRepo.ExistsByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to check permission %s: %w", code, err)
		}
		if exists {
			continue
		}

		p := &Permission{
			ID:          id.NewUUIDv7(),
			Code:        code,
			Description: "Auto-created permission: " + code,
			Active:      true,
		}
		if err := s.permRepo.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create permission %s: %w", code, err)
		}
	}
	return nil
}

// SeedDefaults provisions the role catalog and the default permission set,
// then attaches the defaults to the administrative roles when they carry no
// permissions yet. Idempotent; roles already configured are left alone.
func (s *Service) SeedDefaults(ctx context.Context) error {
	if err := s.InitializeGlobalRoles(ctx); err != nil {
		return err
	}
	if err := s.InitializeDefaultPermissions(ctx); err != nil {
		return err
	}

	for _, name := range []RoleName{RoleAdmin, RoleSuperAdmin} {
		role, err := s.roleRepo.GetByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to load role %s: %w", name, err)
		}
		if len(role.Permissions) > 0 {
			continue
		}
		if _, err := s.SetPermissions(ctx, string(name), DefaultPermissionCodes); err != nil {
			return fmt.Errorf("failed to attach default permissions to %s: %w", name, err)
		}
	}
	return nil
}

// UpsertPermissionsByCodes resolves each code to a permission, creating
// missing ones on the fly
func (s *Service) UpsertPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true

		p, err := s.permRepo.GetByCode(ctx, code)
		if err == nil {
			perms = append(perms, *p)
			continue
		}
		if !errors.Is(err, ErrPermissionNotFound) {
			return nil, fmt.Errorf("failed to look up permission %s: %w", code, err)
		}

		created := &Permission{
			ID:          id.NewUUIDv7(),
			Code:        code,
			Description: "Auto-created permission: " + code,
			Active:      true,
		}
		if err := s.permRepo.Create(ctx, created); err != nil {
			return nil, fmt.Errorf("failed to create permission %s: %w", code, err)
		}
		perms = append(perms, *created)
	}
	return perms, nil
}

// SetPermissions replaces (never merges) a role's permission set and
// returns the updated role. Unknown role names fail with ErrRoleNotFound.
func (s *Service) SetPermissions(ctx context.Context, roleName string, codes []string) (*GlobalRole, error) {
	name, err := ParseRoleName(roleName)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	perms, err := s.UpsertPermissionsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}

	permIDs := make([]string, len(perms))
	for i, p := range perms {
		permIDs[i] = p.ID
	}
	if err := s.roleRepo.SetPermissions(ctx, role.ID, permIDs); err != nil {
		return nil, fmt.Errorf("failed to set permissions: %w", err)
	}
	role.Permissions = perms

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionsChanged,
		Resource: string(name),
		Metadata: map[string]any{"permission_count": len(perms)},
	})

	return role, nil
}

// AssignRolesToUser upserts the single binding for (userID, tenantID),
// replacing any previously assigned role set. Role-name lookup is strict:
// one unknown name fails the whole request, on this path and every other.
func (s *Service) AssignRolesToUser(ctx context.Context, userID, tenantID string, roleNames []string) (*UserTenantRole, error) {
	roles := make([]GlobalRole, 0, len(roleNames))
	for _, raw := range roleNames {
		name, err := ParseRoleName(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, raw)
		}
		role, err := s.roleRepo.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}

	binding, err := s.bindingRepo.Get(ctx, userID, tenantID)
	if err != nil {
		if !errors.Is(err, ErrBindingNotFound) {
			return nil, fmt.Errorf("failed to look up binding: %w", err)
		}
		binding = &UserTenantRole{
			ID:       id.NewUUIDv7(),
			UserID:   userID,
			TenantID: tenantID,
		}
	}

	binding.Roles = roles
	if err := s.bindingRepo.Upsert(ctx, binding); err != nil {
		return nil, fmt.Errorf("failed to save binding: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRolesAssigned,
		TenantID: tenantID,
		ActorID:  userID,
		Metadata: map[string]any{"roles": roleNames},
	})

	return binding, nil
}

// ResolvePermissions returns the union of distinct permission codes across
// every active role bound to the user in the tenant, sorted for stable
// output. A user with no binding gets an empty set, not an error.
func (s *Service) ResolvePermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	binding, err := s.bindingRepo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to look up binding: %w", err)
	}

	set := make(map[string]bool)
	for _, role := range binding.Roles {
		if !role.Active {
			continue
		}
		for _, p := range role.Permissions {
			if p.Active {
				set[p.Code] = true
			}
		}
	}

	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// UserHasRoleInTenant reports whether the user's binding in the tenant
// includes the named role
func (s *Service) UserHasRoleInTenant(ctx context.Context, userID, tenantID string, name RoleName) (bool, error) {
	binding, err := s.bindingRepo.Get(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return false, nil
		}
		return false, err
	}
	return binding.HasRole(name), nil
}

// GetUserRolesInTenant retrieves the user's binding in the tenant
func (s *Service) GetUserRolesInTenant(ctx context.Context, userID, tenantID string) (*UserTenantRole, error) {
	return s.bindingRepo.Get(ctx, userID, tenantID)
}

// GetUserTenants retrieves all bindings a user holds across tenants
func (s *Service) GetUserTenants(ctx context.Context, userID string) ([]*UserTenantRole, error) {
	return s.bindingRepo.ListByUser(ctx, userID)
}

// GetTenantUsers retrieves all role bindings within a tenant
func (s *Service) GetTenantUsers(ctx context.Context, tenantID string) ([]*UserTenantRole, error) {
	return s.bindingRepo.ListByTenant(ctx, tenantID)
}

// RemoveUserFromTenant deletes the user's binding in the tenant
func (s *Service) RemoveUserFromTenant(ctx context.Context, userID, tenantID string) error {
	if err := s.bindingRepo.Delete(ctx, userID, tenantID); err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return nil
		}
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRemoved,
		TenantID: tenantID,
		ActorID:  userID,
	})
	return nil
}

// ListRoles retrieves all active roles with their permissions
func (s *Service) ListRoles(ctx context.Context) ([]*GlobalRole, error) {
	return s.roleRepo.ListActive(ctx)
}

// ListPermissions retrieves the full permission catalog
func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.permRepo.List(ctx)
}
