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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/keyfold/keyfold/internal/authz"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new global role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create creates a new global role
func (r *RoleRepository) Create(ctx context.Context, role *authz.GlobalRole) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO global_roles (id, name, description, active)
		VALUES ($1, $2, $3, $4)
	`, role.ID, string(role.Name), role.Description, role.Active)

	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByName retrieves a role with its permissions
func (r *RoleRepository) GetByName(ctx context.Context, name authz.RoleName) (*authz.GlobalRole, error) {
	var role authz.GlobalRole
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, description, active
		FROM global_roles
		WHERE name = $1
	`, string(name)).Scan(&role.ID, &role.Name, &role.Description, &role.Active)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// ExistsByName reports whether a role with the name exists
func (r *RoleRepository) ExistsByName(ctx context.Context, name authz.RoleName) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM global_roles WHERE name = $1)
	`, string(name)).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

// SetPermissions replaces the role's permission set in one transaction
func (r *RoleRepository) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM role_permissions WHERE role_id = $1
		`, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, roleID, permID); err != nil {
				return fmt.Errorf("failed to attach permission: %w", err)
			}
		}
		return nil
	})
}

// ListActive retrieves all active roles with their permissions
func (r *RoleRepository) ListActive(ctx context.Context) ([]*authz.GlobalRole, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, description, active
		FROM global_roles
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*authz.GlobalRole
	for rows.Next() {
		var role authz.GlobalRole
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Active); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		perms, err := r.rolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return roles, nil
}

func (r *RoleRepository) rolePermissions(ctx context.Context, roleID string) ([]authz.Permission, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT p.id, p.code, p.description, p.active
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	perms := []authz.Permission{}
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// PermissionRepository implements authz.PermissionRepository
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Create creates a new permission
func (r *PermissionRepository) Create(ctx context.Context, p *authz.Permission) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO permissions (id, code, description, active)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.Code, p.Description, p.Active)

	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetByCode retrieves a permission by its unique code
func (r *PermissionRepository) GetByCode(ctx context.Context, code string) (*authz.Permission, error) {
	var p authz.Permission
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, code, description, active
		FROM permissions
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Description, &p.Active)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &p, nil
}

// ExistsByCode reports whether a permission with the code exists
func (r *PermissionRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM permissions WHERE code = $1)
	`, code).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return exists, nil
}

// List retrieves all permissions
func (r *PermissionRepository) List(ctx context.Context) ([]*authz.Permission, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, code, description, active
		FROM permissions
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Description, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, &p)
	}
	return perms, rows.Err()
}

// BindingRepository implements authz.BindingRepository
type BindingRepository struct {
	db *DB
}

// NewBindingRepository creates a new role binding repository
func NewBindingRepository(db *DB) *BindingRepository {
	return &BindingRepository{db: db}
}

// Upsert creates or replaces the binding for (UserID, TenantID). The role
// set is replaced wholesale inside one transaction.
func (r *BindingRepository) Upsert(ctx context.Context, binding *authz.UserTenantRole) error {
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		var bindingID string
		err := tx.QueryRow(ctx, `
			INSERT INTO user_tenant_roles (id, user_id, tenant_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, tenant_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id
		`, binding.ID, binding.UserID, binding.TenantID).Scan(&bindingID)
		if err != nil {
			return fmt.Errorf("failed to upsert binding: %w", err)
		}
		binding.ID = bindingID

		if _, err := tx.Exec(ctx, `
			DELETE FROM binding_roles WHERE binding_id = $1
		`, bindingID); err != nil {
			return fmt.Errorf("failed to clear binding roles: %w", err)
		}

		for _, role := range binding.Roles {
			if _, err := tx.Exec(ctx, `
				INSERT INTO binding_roles (binding_id, role_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, bindingID, role.ID); err != nil {
				return fmt.Errorf("failed to attach role: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves the binding for (userID, tenantID) with its roles and
// their permissions
func (r *BindingRepository) Get(ctx context.Context, userID, tenantID string) (*authz.UserTenantRole, error) {
	var binding authz.UserTenantRole
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, tenant_id
		FROM user_tenant_roles
		WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID).Scan(&binding.ID, &binding.UserID, &binding.TenantID)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrBindingNotFound
		}
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	roles, err := r.bindingRoles(ctx, binding.ID)
	if err != nil {
		return nil, err
	}
	binding.Roles = roles
	return &binding, nil
}

// ListByUser retrieves all bindings for a user across tenants
func (r *BindingRepository) ListByUser(ctx context.Context, userID string) ([]*authz.UserTenantRole, error) {
	return r.list(ctx, `WHERE user_id = $1 ORDER BY tenant_id`, userID)
}

// ListByTenant retrieves all bindings within a tenant
func (r *BindingRepository) ListByTenant(ctx context.Context, tenantID string) ([]*authz.UserTenantRole, error) {
	return r.list(ctx, `WHERE tenant_id = $1 ORDER BY user_id`, tenantID)
}

func (r *BindingRepository) list(ctx context.Context, where string, arg any) ([]*authz.UserTenantRole, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, user_id, tenant_id FROM user_tenant_roles `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*authz.UserTenantRole
	for rows.Next() {
		var b authz.UserTenantRole
		if err := rows.Scan(&b.ID, &b.UserID, &b.TenantID); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range bindings {
		roles, err := r.bindingRoles(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Roles = roles
	}
	return bindings, nil
}

// Delete removes the binding for (userID, tenantID)
func (r *BindingRepository) Delete(ctx context.Context, userID, tenantID string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM user_tenant_roles WHERE user_id = $1 AND tenant_id = $2
	`, userID, tenantID)

	if err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return authz.ErrBindingNotFound
	}
	return nil
}

func (r *BindingRepository) bindingRoles(ctx context.Context, bindingID string) ([]authz.GlobalRole, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT gr.id, gr.name, gr.description, gr.active
		FROM global_roles gr
		JOIN binding_roles br ON br.role_id = gr.id
		WHERE br.binding_id = $1
		ORDER BY gr.name
	`, bindingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get binding roles: %w", err)
	}
	defer rows.Close()

	roles := []authz.GlobalRole{}
	for rows.Next() {
		var role authz.GlobalRole
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Active); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roleRepo := &RoleRepository{db: r.db}
	for i := range roles {
		perms, err := roleRepo.rolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}
