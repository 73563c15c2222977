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
	"fmt"
	"time"

	"github.com/keyfold/keyfold/internal/token"
)

// RevokedTokenRepository implements token.RevokedRepository
type RevokedTokenRepository struct {
	db *DB
}

// NewRevokedTokenRepository creates a new blacklist repository
func NewRevokedTokenRepository(db *DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Add inserts a blacklist entry. The token column is unique, so re-adding
// the same token stays one row.
func (r *RevokedTokenRepository) Add(ctx context.Context, entry *token.RevokedToken) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (id, token, username, tenant_id, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token) DO NOTHING
	`, entry.ID, entry.Token, entry.Username, entry.TenantID, entry.RevokedAt, entry.ExpiresAt)

	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}

// Exists reports whether the token value is blacklisted
func (r *RevokedTokenRepository) Exists(ctx context.Context, tokenValue string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token = $1)
	`, tokenValue).Scan(&exists)

	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}

// DeleteByUser removes the entries for (username, tenantID)
func (r *RevokedTokenRepository) DeleteByUser(ctx context.Context, username, tenantID string) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE username = $1 AND tenant_id = $2
	`, username, tenantID)

	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes entries whose expiry is before the cutoff
func (r *RevokedTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at < $1
	`, cutoff)

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}
	return result.RowsAffected(), nil
}
