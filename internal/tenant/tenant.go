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

package tenant

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidTenantName   = errors.New("tenant name cannot be empty")
)

// Tenant represents an isolated customer or organization namespace.
// All authentication and role bindings are scoped to one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Slug      string    `json:"tenant_id"` // unique, immutable once minted
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for tenant persistence
type Repository interface {
	// Create creates a new tenant
	Create(ctx context.Context, t *Tenant) error

	// GetByID retrieves a tenant by its internal ID
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// GetBySlug retrieves a tenant by its public slug
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)

	// ExistsBySlug reports whether a tenant with the slug exists
	ExistsBySlug(ctx context.Context, slug string) (bool, error)

	// Update updates tenant information
	Update(ctx context.Context, t *Tenant) error

	// ListActive retrieves all active tenants
	ListActive(ctx context.Context) ([]*Tenant, error)
}
