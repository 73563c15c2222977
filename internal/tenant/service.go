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
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/id"
)

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// Create creates a new tenant. The slug is derived from the name and is
// immutable once minted.
func (s *Service) Create(ctx context.Context, name string) (*Tenant, error) {
	slug, err := SlugFromName(name)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to check tenant slug: %w", err)
	}
	if exists {
		return nil, ErrTenantAlreadyExists
	}

	now := time.Now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      slug,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.Slug,
		Resource: t.Name,
	})

	return t, nil
}

// Get retrieves a tenant by its internal ID
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetByID(ctx, tenantID)
}

// GetBySlug retrieves a tenant by its public slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Exists reports whether a tenant with the given slug exists
func (s *Service) Exists(ctx context.Context, slug string) (bool, error) {
	return s.repo.ExistsBySlug(ctx, slug)
}

// ListActive lists all active tenants
func (s *Service) ListActive(ctx context.Context) ([]*Tenant, error) {
	return s.repo.ListActive(ctx)
}

// Deactivate soft-deactivates a tenant. The row is never removed while
// users or role bindings still reference it.
func (s *Service) Deactivate(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.setActive(ctx, tenantID, false, audit.TypeTenantDeactivated)
}

// Reactivate re-enables a previously deactivated tenant
func (s *Service) Reactivate(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.setActive(ctx, tenantID, true, audit.TypeTenantReactivated)
}

func (s *Service) setActive(ctx context.Context, tenantID string, active bool, eventType string) (*Tenant, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	t.Active = active
	t.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: t.Slug,
		Resource: t.Name,
	})

	return t, nil
}
