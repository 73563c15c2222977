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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/keyfold/keyfold/internal/token"
)

// RefreshTokenRepository implements token.RefreshRepository
type RefreshTokenRepository struct {
	db *DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Rotate revokes every active token for (username, tenantID) and inserts
// the replacement in one transaction. Concurrent rotations for the same
// pair must serialize before the UPDATE runs: under READ COMMITTED neither
// side's UPDATE can see the other's uncommitted INSERT, so without the
// advisory lock both replacement rows would commit active. The unique
// partial index on (username, tenant_id) WHERE NOT revoked backstops the
// invariant.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, username, tenantID string, next *token.RefreshToken) error {
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			SELECT pg_advisory_xact_lock(hashtextextended($1 || '/' || $2, 0))
		`, username, tenantID); err != nil {
			return fmt.Errorf("failed to serialize rotation: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE refresh_tokens SET revoked = true
			WHERE username = $1 AND tenant_id = $2 AND NOT revoked
		`, username, tenantID); err != nil {
			return fmt.Errorf("failed to revoke active tokens: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO refresh_tokens (id, token, username, tenant_id, created_at, expires_at, revoked)
			VALUES ($1, $2, $3, $4, $5, $6, false)
		`, next.ID, next.Token, next.Username, next.TenantID, next.CreatedAt, next.ExpiresAt); err != nil {
			return fmt.Errorf("failed to insert refresh token: %w", err)
		}
		return nil
	})
}

// Get retrieves a token by its opaque value
func (r *RefreshTokenRepository) Get(ctx context.Context, tokenValue string) (*token.RefreshToken, error) {
	var rt token.RefreshToken
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, token, username, tenant_id, created_at, expires_at, revoked
		FROM refresh_tokens
		WHERE token = $1
	`, tokenValue).Scan(
		&rt.ID, &rt.Token, &rt.Username, &rt.TenantID, &rt.CreatedAt, &rt.ExpiresAt, &rt.Revoked,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke marks a single token revoked
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenValue string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true WHERE token = $1
	`, tokenValue)

	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return token.ErrRefreshTokenNotFound
	}
	return nil
}

// RevokeAll marks every active token for (username, tenantID) revoked
func (r *RefreshTokenRepository) RevokeAll(ctx context.Context, username, tenantID string) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = true
		WHERE username = $1 AND tenant_id = $2 AND NOT revoked
	`, username, tenantID)

	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before the cutoff
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, cutoff)

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListActive retrieves the non-revoked, non-expired tokens for (username, tenantID)
func (r *RefreshTokenRepository) ListActive(ctx context.Context, username, tenantID string) ([]*token.RefreshToken, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, token, username, tenant_id, created_at, expires_at, revoked
		FROM refresh_tokens
		WHERE username = $1 AND tenant_id = $2 AND NOT revoked AND expires_at > NOW()
		ORDER BY created_at DESC
	`, username, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*token.RefreshToken
	for rows.Next() {
		var rt token.RefreshToken
		if err := rows.Scan(
			&rt.ID, &rt.Token, &rt.Username, &rt.TenantID, &rt.CreatedAt, &rt.ExpiresAt, &rt.Revoked,
		); err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		tokens = append(tokens, &rt)
	}
	return tokens, rows.Err()
}
