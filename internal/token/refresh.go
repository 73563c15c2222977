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

package token

import (
	"context"
	"errors"
	"time"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/keyfold/keyfold/internal/id"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
)

// RefreshToken is an opaque, single-tenant credential for obtaining a new
// access token without re-authenticating
type RefreshToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// IsExpired reports whether the token's lifetime has passed
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// RefreshRepository defines the interface for refresh token persistence
type RefreshRepository interface {
	// Rotate atomically revokes every active token for (username, tenantID)
	// and stores the replacement. Implementations must serialize concurrent
	// rotations for the same pair; atomicity of the revoke-insert pair alone
	// is not enough to keep a single token active.
	Rotate(ctx context.Context, username, tenantID string, next *RefreshToken) error

	// Get retrieves a token by its opaque value, ErrRefreshTokenNotFound if absent
	Get(ctx context.Context, token string) (*RefreshToken, error)

	// Revoke marks a single token revoked. Revoking an already-revoked
	// token is a no-op.
	Revoke(ctx context.Context, token string) error

	// RevokeAll marks every active token for (username, tenantID) revoked
	RevokeAll(ctx context.Context, username, tenantID string) error

	// DeleteExpired removes tokens whose expiry is before the cutoff and
	// returns how many were removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// ListActive retrieves the non-revoked, non-expired tokens for
	// (username, tenantID)
	ListActive(ctx context.Context, username, tenantID string) ([]*RefreshToken, error)
}

// Manager owns the refresh token lifecycle. The invariant it maintains is
// at most one active refresh token per (username, tenant) pair.
type Manager struct {
	repo        RefreshRepository
	ttl         time.Duration
	auditLogger audit.Logger
	now         func() time.Time
}

// NewManager creates a refresh token manager
func NewManager(repo RefreshRepository, ttl time.Duration, auditLogger audit.Logger) *Manager {
	return &Manager{
		repo:        repo,
		ttl:         ttl,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// Generate issues a fresh token for (username, tenantID). Any previously
// active token for the pair is revoked in the same transaction.
func (m *Manager) Generate(ctx context.Context, username, tenantID string) (*RefreshToken, error) {
	now := m.now().UTC()
	rt := &RefreshToken{
		ID:        id.NewUUIDv7(),
		Token:     id.NewToken(),
		Username:  username,
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.repo.Rotate(ctx, username, tenantID, rt); err != nil {
		return nil, err
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenIssued,
		TenantID: tenantID,
		Resource: username,
		Metadata: map[string]any{"kind": "refresh"},
	})

	return rt, nil
}

// ValidateForTenant checks that the opaque token exists, is not revoked,
// is not expired, and belongs to the given tenant. A token issued for one
// tenant never refreshes a session in another.
func (m *Manager) ValidateForTenant(ctx context.Context, token, tenantID string) (*RefreshToken, error) {
	rt, err := m.repo.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rt.Revoked {
		return nil, ErrRefreshTokenRevoked
	}
	if rt.IsExpired(m.now()) {
		return nil, ErrRefreshTokenExpired
	}
	if rt.TenantID != tenantID {
		return nil, ErrTokenTenantMismatch
	}
	return rt, nil
}

// Revoke marks a single token revoked. Unknown tokens are treated as
// already revoked.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if err := m.repo.Revoke(ctx, token); err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// RevokeAll revokes every active token for (username, tenantID)
func (m *Manager) RevokeAll(ctx context.Context, username, tenantID string) error {
	if err := m.repo.RevokeAll(ctx, username, tenantID); err != nil {
		return err
	}

	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRevoked,
		TenantID: tenantID,
		Resource: username,
		Metadata: map[string]any{"kind": "refresh"},
	})
	return nil
}

// CleanExpired removes every token whose expiry has passed
func (m *Manager) CleanExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now().UTC())
}

// Get retrieves a token by its opaque value
func (m *Manager) Get(ctx context.Context, token string) (*RefreshToken, error) {
	return m.repo.Get(ctx, token)
}

// ActiveTokens lists the active tokens for (username, tenantID). Under the
// rotation invariant the result holds at most one entry.
func (m *Manager) ActiveTokens(ctx context.Context, username, tenantID string) ([]*RefreshToken, error) {
	return m.repo.ListActive(ctx, username, tenantID)
}
