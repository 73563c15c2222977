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
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keyfold/keyfold/internal/id"
	"github.com/keyfold/keyfold/internal/observability/logger"
)

// Validation failure kinds. These are internal diagnostics: callers making
// an authorization decision should use Valid, which collapses every kind to
// a single boolean so the failure reason never leaks to a client.
var (
	ErrTokenMalformed      = errors.New("token is malformed")
	ErrTokenExpired        = errors.New("token is expired")
	ErrTokenUnsupported    = errors.New("token algorithm is unsupported")
	ErrTokenBlacklisted    = errors.New("token is revoked")
	ErrTokenTenantMismatch = errors.New("token does not belong to tenant")
)

// Claims carried by a Keyfold access token
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Blacklist answers membership queries for revoked access tokens
type Blacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// Issuer signs and verifies access tokens carrying identity and tenant
// claims. Tokens are HMAC-SHA256 JWTs.
type Issuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	blacklist Blacklist
	now       func() time.Time
}

// NewIssuer creates a token issuer/validator
func NewIssuer(secret []byte, issuer string, accessTTL time.Duration, blacklist Blacklist) *Issuer {
	return &Issuer{
		secret:    secret,
		issuer:    issuer,
		accessTTL: accessTTL,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// Issue mints a signed access token for the subject within the tenant
func (i *Issuer) Issue(subject, tenantID string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        id.NewUUIDv7(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate checks a token and returns its claims. Order matters:
// blacklist membership is checked before any cryptographic work, so a
// revoked-but-well-formed token is rejected without paying parse cost.
// Then signature, then expiry.
func (i *Issuer) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	blacklisted, err := i.blacklist.IsBlacklisted(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, ErrTokenBlacklisted
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenUnsupported
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, ErrTokenUnsupported), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenUnsupported
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Valid collapses every validation failure to a boolean for authorization
// decisions. The failure kind is logged for observability only.
func (i *Issuer) Valid(ctx context.Context, tokenString string) bool {
	if _, err := i.Validate(ctx, tokenString); err != nil {
		slog.DebugContext(ctx, "token rejected", logger.Error(err))
		return false
	}
	return true
}

// ExpiresAt extracts the expiry claim without validating the token. Used at
// sign-out to bound the blacklist entry's lifetime by the token's own expiry
// even when the token is already expired or its signature no longer checks.
func (i *Issuer) ExpiresAt(tokenString string) (time.Time, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, ErrTokenMalformed
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrTokenMalformed
	}
	return claims.ExpiresAt.Time, nil
}
