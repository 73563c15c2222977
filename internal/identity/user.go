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

package identity

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserInactive       = errors.New("user is not active")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
)

// User represents a user identity. A user's authentication identity is
// always evaluated within a tenant: the same username may exist once per
// tenant, while email is globally unique.
type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	TenantID     string // home tenant slug
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines the interface for user persistence
type Repository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, userID string) (*User, error)

	// GetByUsernameAndTenant retrieves a user by username within a tenant
	GetByUsernameAndTenant(ctx context.Context, username, tenantID string) (*User, error)

	// ListByUsername retrieves the user's identities across all tenants
	ListByUsername(ctx context.Context, username string) ([]*User, error)

	// ExistsByEmail reports whether any user holds the email
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// ExistsInTenant reports whether the username exists within the tenant
	ExistsInTenant(ctx context.Context, username, tenantID string) (bool, error)

	// Update updates user information
	Update(ctx context.Context, user *User) error
}
