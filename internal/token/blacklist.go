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
	"time"

	"github.com/keyfold/keyfold/internal/id"
)

// RevokedToken is a blacklist entry for an access token revoked before its
// natural expiry. ExpiresAt mirrors the token's own expiry claim, so every
// entry is removable once the token it blocks could no longer validate
// anyway.
type RevokedToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	TenantID  string    `json:"tenant_id"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RevokedRepository defines the interface for blacklist persistence
type RevokedRepository interface {
	// Add inserts a blacklist entry. Re-adding the same token is a no-op.
	Add(ctx context.Context, entry *RevokedToken) error

	// Exists reports whether the token value is blacklisted
	Exists(ctx context.Context, token string) (bool, error)

	// DeleteByUser removes the entries for (username, tenantID) and
	// returns how many were removed
	DeleteByUser(ctx context.Context, username, tenantID string) (int64, error)

	// DeleteExpired removes entries whose expiry is before the cutoff and
	// returns how many were removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Denylist records access tokens revoked before expiry and answers
// membership queries during validation. It implements Blacklist.
type Denylist struct {
	repo RevokedRepository
	now  func() time.Time
}

// NewDenylist creates an access token blacklist
func NewDenylist(repo RevokedRepository) *Denylist {
	return &Denylist{repo: repo, now: time.Now}
}

// Add blacklists an access token until the given expiry. Entries added
// twice stay single entries.
func (d *Denylist) Add(ctx context.Context, tokenString, username, tenantID string, expiresAt time.Time) error {
	entry := &RevokedToken{
		ID:        id.NewUUIDv7(),
		Token:     tokenString,
		Username:  username,
		TenantID:  tenantID,
		RevokedAt: d.now().UTC(),
		ExpiresAt: expiresAt,
	}
	return d.repo.Add(ctx, entry)
}

// IsBlacklisted reports whether the token value has been revoked
func (d *Denylist) IsBlacklisted(ctx context.Context, tokenString string) (bool, error) {
	return d.repo.Exists(ctx, tokenString)
}

// PurgeUser removes the blacklist entries for (username, tenantID). This
// is storage bookkeeping after a full sign-out, not a revocation: the
// user's access tokens are already unusable by then.
func (d *Denylist) PurgeUser(ctx context.Context, username, tenantID string) (int64, error) {
	return d.repo.DeleteByUser(ctx, username, tenantID)
}

// CleanExpired removes entries whose underlying token has expired on its
// own. Such entries no longer block anything.
func (d *Denylist) CleanExpired(ctx context.Context) (int64, error) {
	return d.repo.DeleteExpired(ctx, d.now().UTC())
}
