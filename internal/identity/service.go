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
	"fmt"
	"strings"
	"time"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/id"
)

// Service provides identity-related business logic
type Service struct {
	repo        Repository
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(repo Repository, hasher *PasswordHasher, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// NewUser describes the fields required to create a user
type NewUser struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
	TenantID  string
}

// Create creates a new user identity with hashed credentials
func (s *Service) Create(ctx context.Context, req NewUser) (*User, error) {
	if !isValidEmail(req.Email) {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(req.Password) {
		return nil, ErrWeakPassword
	}

	taken, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrUserAlreadyExists
	}

	exists, err := s.repo.ExistsInTenant(ctx, req.Username, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           id.NewUUIDv7(),
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: passwordHash,
		TenantID:     req.TenantID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		TenantID: req.TenantID,
		ActorID:  user.ID,
		Resource: user.Username,
	})

	return user, nil
}

// VerifyCredentials checks a username/password pair within a tenant. The
// user must exist in the tenant and be active. Any failure collapses to
// ErrInvalidCredentials; the precise reason goes to the audit log only.
func (s *Service) VerifyCredentials(ctx context.Context, username, password, tenantID string) (*User, error) {
	user, err := s.repo.GetByUsernameAndTenant(ctx, username, tenantID)
	if err != nil {
		s.auditFailure(ctx, tenantID, username, "user_not_found")
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		s.auditFailure(ctx, tenantID, username, "user_inactive")
		return nil, ErrInvalidCredentials
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		s.auditFailure(ctx, tenantID, username, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Get retrieves a user by ID
func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetInTenant retrieves a user by username within a tenant
func (s *Service) GetInTenant(ctx context.Context, username, tenantID string) (*User, error) {
	user, err := s.repo.GetByUsernameAndTenant(ctx, username, tenantID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ExistsInTenant reports whether a username exists within a tenant
func (s *Service) ExistsInTenant(ctx context.Context, username, tenantID string) (bool, error) {
	return s.repo.ExistsInTenant(ctx, username, tenantID)
}

// IsActiveInTenant reports whether the user exists in the tenant and is active
func (s *Service) IsActiveInTenant(ctx context.Context, username, tenantID string) (bool, error) {
	user, err := s.repo.GetByUsernameAndTenant(ctx, username, tenantID)
	if err != nil {
		return false, nil
	}
	return user.Active, nil
}

// ListByUsername returns the user's identities across all tenants
func (s *Service) ListByUsername(ctx context.Context, username string) ([]*User, error) {
	return s.repo.ListByUsername(ctx, username)
}

// ChangePassword changes a user's password after verifying the old one
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = newHash
	user.UpdatedAt = time.Now()
	return s.repo.Update(ctx, user)
}

func (s *Service) auditFailure(ctx context.Context, tenantID, username, reason string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSignInFailed,
		TenantID: tenantID,
		Resource: username,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}

// Helper functions
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && len(email) < 255
}

func isStrongPassword(password string) bool {
	// Password must be at least 8 characters
	return len(password) >= 8
}
