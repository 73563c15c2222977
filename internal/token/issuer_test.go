package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlacklist struct {
	revoked map[string]bool
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{revoked: make(map[string]bool)}
}

func (f *fakeBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return f.revoked[token], nil
}

var testSecret = []byte("test-signing-secret-0123456789ab")

// TestPurpose: Validates the issue/validate round trip and claim contents.
// Scope: Unit Test
// Expected: Subject, tenant and issuer claims survive the round trip; a token ID is set.
// Test Case ID: TOK-01
func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, "keyfold", 15*time.Minute, newFakeBlacklist())
	ctx := context.Background()

	signed, err := issuer.Issue("alice", "acme")
	require.NoError(t, err)

	claims, err := issuer.Validate(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "keyfold", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, issuer.Valid(ctx, signed))
}

// TestPurpose: Validates expiry enforcement using an injected clock.
// Scope: Unit Test
// Expected: A token validates before its TTL elapses and fails with ErrTokenExpired after.
// Test Case ID: TOK-02
func TestIssuer_Expiry(t *testing.T) {
	issuer := NewIssuer(testSecret, "keyfold", 15*time.Minute, newFakeBlacklist())
	ctx := context.Background()

	issuedAt := time.Now()
	issuer.now = func() time.Time { return issuedAt }

	signed, err := issuer.Issue("alice", "acme")
	require.NoError(t, err)

	issuer.now = func() time.Time { return issuedAt.Add(14 * time.Minute) }
	_, err = issuer.Validate(ctx, signed)
	assert.NoError(t, err)

	issuer.now = func() time.Time { return issuedAt.Add(16 * time.Minute) }
	_, err = issuer.Validate(ctx, signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, issuer.Valid(ctx, signed))
}

// TestPurpose: Validates that blacklist membership is checked before parsing.
// Scope: Unit Test
// Expected: A blacklisted value is rejected as revoked even when it is not parseable.
// Test Case ID: TOK-03
func TestIssuer_BlacklistCheckedFirst(t *testing.T) {
	blacklist := newFakeBlacklist()
	issuer := NewIssuer(testSecret, "keyfold", 15*time.Minute, blacklist)
	ctx := context.Background()

	blacklist.revoked["not-even-a-jwt"] = true

	_, err := issuer.Validate(ctx, "not-even-a-jwt")
	assert.ErrorIs(t, err, ErrTokenBlacklisted)
}

// TestPurpose: Validates rejection of tokens signed with a different secret or algorithm.
// Scope: Unit Test
// Expected: Wrong-key and wrong-method tokens fail validation.
// Test Case ID: TOK-04
func TestIssuer_RejectsForeignTokens(t *testing.T) {
	issuer := NewIssuer(testSecret, "keyfold", 15*time.Minute, newFakeBlacklist())
	ctx := context.Background()

	otherIssuer := NewIssuer([]byte("a-completely-different-secret!!!"), "keyfold", 15*time.Minute, newFakeBlacklist())
	foreign, err := otherIssuer.Issue("alice", "acme")
	require.NoError(t, err)

	_, err = issuer.Validate(ctx, foreign)
	assert.Error(t, err)
	assert.False(t, issuer.Valid(ctx, foreign))

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		TenantID: "acme",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = issuer.Validate(ctx, hs512)
	assert.ErrorIs(t, err, ErrTokenUnsupported)
}

// TestPurpose: Validates malformed-input handling.
// Scope: Unit Test
// Expected: Empty and garbage inputs fail as malformed, never panic.
// Test Case ID: TOK-05
func TestIssuer_Malformed(t *testing.T) {
	issuer := NewIssuer(testSecret, "keyfold", 15*time.Minute, newFakeBlacklist())
	ctx := context.Background()

	for _, in := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := issuer.Validate(ctx, in)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", in)
	}
}

// TestPurpose: Validates expiry extraction from tokens past their lifetime.
// Scope: Unit Test
// Expected: ExpiresAt returns the claim even when the token no longer validates.
// Test Case ID: TOK-06
func TestIssuer_ExpiresAtOnExpiredToken(t *testing.T) {
	issuer := NewIssuer(testSecret, "keyfold", time.Minute, newFakeBlacklist())

	issuedAt := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issuedAt }
	signed, err := issuer.Issue("alice", "acme")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Validate(context.Background(), signed)
	assert.ErrorIs(t, err, ErrTokenExpired)

	expiresAt, err := issuer.ExpiresAt(signed)
	require.NoError(t, err)
	assert.WithinDuration(t, issuedAt.Add(time.Minute), expiresAt, 2*time.Second)
}
