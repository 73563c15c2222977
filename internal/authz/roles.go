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

import "strings"

// RoleName is the name of a system-wide role. The catalog is fixed:
// permissions attached to a role apply identically in every tenant.
type RoleName string

const (
	RoleUser       RoleName = "USER"
	RoleModerator  RoleName = "MODERATOR"
	RoleAdmin      RoleName = "ADMIN"
	RoleSuperAdmin RoleName = "SUPER_ADMIN"
)

// AllRoleNames lists every role in catalog order
var AllRoleNames = []RoleName{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}

// Description returns the human-readable description seeded for the role
func (r RoleName) Description() string {
	switch r {
	case RoleUser:
		return "Basic user with limited permissions"
	case RoleModerator:
		return "Moderator with content management permissions"
	case RoleAdmin:
		return "Administrator with full permissions in their tenant"
	case RoleSuperAdmin:
		return "Super administrator with global system permissions"
	default:
		return "System role"
	}
}

// ParseRoleName resolves a role-name string to a catalog role. Lookup is
// strict: unknown names return ErrRoleNotFound on every assignment path.
// Common aliases ("mod", "superadmin") are accepted.
func ParseRoleName(name string) (RoleName, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "USER":
		return RoleUser, nil
	case "MOD", "MODERATOR":
		return RoleModerator, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "SUPER_ADMIN", "SUPERADMIN":
		return RoleSuperAdmin, nil
	default:
		return "", ErrRoleNotFound
	}
}

// DefaultPermissionCodes is the permission catalog seeded at startup
var DefaultPermissionCodes = []string{
	"VIEW_DASHBOARD",
	"MANAGE_USERS",
	"VIEW_REPORTS",
	"COMPONENT:UsersTable",
	"COMPONENT:AdminPanel",
}
