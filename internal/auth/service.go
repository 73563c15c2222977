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

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/authz"
	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/internal/tenant"
	"github.com/keyfold/keyfold/internal/token"
)

// ErrAuthenticationFailed is the single error every failed sign-in,
// refresh or tenant switch collapses to. Which stage failed (unknown
// tenant, unknown user, inactive account, bad password) is recorded in the
// audit log only, never surfaced to the caller.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Session is the result of a successful authentication
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	UserID       string   `json:"user_id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	TenantID     string   `json:"tenant_id"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
}

// SignUpRequest carries the fields for tenant bootstrap
type SignUpRequest struct {
	TenantName string
	Username   string
	FirstName  string
	LastName   string
	Email      string
	Password   string
}

// Service orchestrates the authentication flows across tenants, users,
// roles and tokens
type Service struct {
	tenants     *tenant.Service
	users       *identity.Service
	authz       *authz.Service
	issuer      *token.Issuer
	refresh     *token.Manager
	denylist    *token.Denylist
	auditLogger audit.Logger
}

// NewService creates the authentication orchestrator
func NewService(
	tenants *tenant.Service,
	users *identity.Service,
	authzSvc *authz.Service,
	issuer *token.Issuer,
	refresh *token.Manager,
	denylist *token.Denylist,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		tenants:     tenants,
		users:       users,
		authz:       authzSvc,
		issuer:      issuer,
		refresh:     refresh,
		denylist:    denylist,
		auditLogger: auditLogger,
	}
}

// SignIn authenticates a username/password pair within a tenant and issues
// an access/refresh token pair. Stages run in order: tenant exists, tenant
// active, user exists in tenant, user active, credentials verify. Every
// failure returns ErrAuthenticationFailed.
func (s *Service) SignIn(ctx context.Context, username, password, tenantID string) (*Session, error) {
	t, err := s.tenants.GetBySlug(ctx, tenantID)
	if err != nil {
		s.auditFailure(ctx, tenantID, username, "tenant_not_found")
		return nil, ErrAuthenticationFailed
	}
	if !t.Active {
		s.auditFailure(ctx, tenantID, username, "tenant_inactive")
		return nil, ErrAuthenticationFailed
	}

	// Credential stages (user missing, inactive, bad password) are audited
	// inside the identity service with their precise reason.
	user, err := s.users.VerifyCredentials(ctx, username, password, tenantID)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	return s.issueSession(ctx, user, tenantID, audit.TypeSignInSuccess)
}

// SignUp bootstraps a tenant: creates it with a slug derived from its name,
// creates the founding user, seeds the default permission catalog and binds
// the user as ADMIN, then signs the user in. Unlike SignIn, failures here
// return domain errors since nothing secret is being probed.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	t, err := s.tenants.Create(ctx, req.TenantName)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, identity.NewUser{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		TenantID:  t.Slug,
	})
	if err != nil {
		return nil, err
	}

	if err := s.authz.SeedDefaults(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed role catalog: %w", err)
	}
	if _, err := s.authz.AssignRolesToUser(ctx, user.ID, t.Slug, []string{string(authz.RoleAdmin)}); err != nil {
		return nil, fmt.Errorf("failed to assign founder role: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSignUp,
		TenantID: t.Slug,
		ActorID:  user.ID,
		Resource: user.Username,
	})

	return s.issueSession(ctx, user, t.Slug, audit.TypeSignInSuccess)
}

// SignOut ends the session the access token belongs to: every refresh
// token for (username, tenant) is revoked and the presented access token
// is blacklisted until its own expiry.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.issuer.Validate(ctx, accessToken)
	if err != nil {
		return ErrAuthenticationFailed
	}
	username := claims.Subject
	tenantID := claims.TenantID

	// Purge stale blacklist rows for the user before adding the current
	// token; the other order would delete the entry just written.
	if _, err := s.denylist.PurgeUser(ctx, username, tenantID); err != nil {
		return fmt.Errorf("failed to purge blacklist entries: %w", err)
	}

	expiresAt, err := s.issuer.ExpiresAt(accessToken)
	if err != nil {
		return ErrAuthenticationFailed
	}
	if err := s.denylist.Add(ctx, accessToken, username, tenantID, expiresAt); err != nil {
		return fmt.Errorf("failed to blacklist access token: %w", err)
	}

	if err := s.refresh.RevokeAll(ctx, username, tenantID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSignOut,
		TenantID: tenantID,
		Resource: username,
	})
	return nil
}

// Refresh exchanges a valid refresh token for a new access/refresh pair.
// The old refresh token is revoked by the rotation, so each opaque value
// is usable exactly once. The tenant and the user must both still be
// active at exchange time; a deactivated tenant cuts off refresh the same
// way it cuts off sign-in.
func (s *Service) Refresh(ctx context.Context, refreshToken, tenantID string) (*Session, error) {
	rt, err := s.refresh.ValidateForTenant(ctx, refreshToken, tenantID)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRejected,
			TenantID: tenantID,
			Metadata: map[string]any{audit.AttrReason: err.Error(), "kind": "refresh"},
		})
		return nil, ErrAuthenticationFailed
	}

	t, err := s.tenants.GetBySlug(ctx, tenantID)
	if err != nil || !t.Active {
		s.auditFailure(ctx, tenantID, rt.Username, "tenant_inactive")
		return nil, ErrAuthenticationFailed
	}

	user, err := s.users.GetInTenant(ctx, rt.Username, tenantID)
	if err != nil || !user.Active {
		s.auditFailure(ctx, tenantID, rt.Username, "user_inactive")
		return nil, ErrAuthenticationFailed
	}

	return s.issueSession(ctx, user, tenantID, audit.TypeTokenRefreshed)
}

// SwitchTenant is a fresh authentication against the destination tenant,
// not a claim rewrite. The caller's identity must exist and be active in
// the destination; the resulting pair is scoped to it.
func (s *Service) SwitchTenant(ctx context.Context, username, destTenantID string) (*Session, error) {
	t, err := s.tenants.GetBySlug(ctx, destTenantID)
	if err != nil || !t.Active {
		s.auditFailure(ctx, destTenantID, username, "tenant_not_found")
		return nil, ErrAuthenticationFailed
	}

	user, err := s.users.GetInTenant(ctx, username, destTenantID)
	if err != nil || !user.Active {
		s.auditFailure(ctx, destTenantID, username, "not_a_member")
		return nil, ErrAuthenticationFailed
	}

	return s.issueSession(ctx, user, destTenantID, audit.TypeTenantSwitched)
}

// Permissions resolves the caller's effective permission codes in a tenant
func (s *Service) Permissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	return s.authz.ResolvePermissions(ctx, userID, tenantID)
}

// TenantsForUser lists the tenants in which the username holds an identity
func (s *Service) TenantsForUser(ctx context.Context, username string) ([]*tenant.Tenant, error) {
	users, err := s.users.ListByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	tenants := make([]*tenant.Tenant, 0, len(users))
	for _, u := range users {
		t, err := s.tenants.GetBySlug(ctx, u.TenantID)
		if err != nil {
			continue
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// issueSession mints the access token, rotates the refresh token and
// assembles the session payload with the user's roles and permissions.
func (s *Service) issueSession(ctx context.Context, user *identity.User, tenantID, eventType string) (*Session, error) {
	accessToken, err := s.issuer.Issue(user.Username, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	rt, err := s.refresh.Generate(ctx, user.Username, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	roles := []string{}
	if binding, err := s.authz.GetUserRolesInTenant(ctx, user.ID, tenantID); err == nil {
		for _, r := range binding.Roles {
			roles = append(roles, string(r.Name))
		}
	} else if !errors.Is(err, authz.ErrBindingNotFound) {
		return nil, fmt.Errorf("failed to resolve roles: %w", err)
	}

	permissions, err := s.authz.ResolvePermissions(ctx, user.ID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: tenantID,
		ActorID:  user.ID,
		Resource: user.Username,
	})

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: rt.Token,
		TokenType:    "Bearer",
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		TenantID:     tenantID,
		Roles:        roles,
		Permissions:  permissions,
	}, nil
}

func (s *Service) auditFailure(ctx context.Context, tenantID, username, reason string) {
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeSignInFailed,
		TenantID: tenantID,
		Resource: username,
		Metadata: map[string]any{audit.AttrReason: reason},
	})
}
