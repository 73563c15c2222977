package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopAudit struct{}

func (nopAudit) Log(ctx context.Context, event audit.Event) {}

// fakeRefreshRepo is an in-memory RefreshRepository with the same rotation
// semantics the SQL implementation provides. Its mutex plays the role of
// the per-pair advisory lock: rotations for the same (username, tenant)
// run one at a time, never interleaved.
type fakeRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: make(map[string]*RefreshToken)}
}

func (f *fakeRefreshRepo) Rotate(ctx context.Context, username, tenantID string, next *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.Username == username && rt.TenantID == tenantID {
			rt.Revoked = true
		}
	}
	cp := *next
	f.tokens[next.Token] = &cp
	return nil
}

func (f *fakeRefreshRepo) Get(ctx context.Context, token string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[token]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *rt
	return &cp, nil
}

func (f *fakeRefreshRepo) Revoke(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[token]
	if !ok {
		return ErrRefreshTokenNotFound
	}
	rt.Revoked = true
	return nil
}

func (f *fakeRefreshRepo) RevokeAll(ctx context.Context, username, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rt := range f.tokens {
		if rt.Username == username && rt.TenantID == tenantID {
			rt.Revoked = true
		}
	}
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for key, rt := range f.tokens {
		if rt.ExpiresAt.Before(cutoff) {
			delete(f.tokens, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeRefreshRepo) ListActive(ctx context.Context, username, tenantID string) ([]*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []*RefreshToken
	for _, rt := range f.tokens {
		if rt.Username == username && rt.TenantID == tenantID && !rt.Revoked && time.Now().Before(rt.ExpiresAt) {
			cp := *rt
			active = append(active, &cp)
		}
	}
	return active, nil
}

// TestPurpose: Validates the single-active-token invariant under repeated sign-ins.
// Scope: Unit Test
// Expected: Generating a second token revokes the first; exactly one stays active.
// Test Case ID: RT-01
func TestRefreshManager_RotationKeepsOneActive(t *testing.T) {
	repo := newFakeRefreshRepo()
	manager := NewManager(repo, 720*time.Hour, nopAudit{})
	ctx := context.Background()

	first, err := manager.Generate(ctx, "alice", "acme")
	require.NoError(t, err)

	second, err := manager.Generate(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = manager.ValidateForTenant(ctx, first.Token, "acme")
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)

	_, err = manager.ValidateForTenant(ctx, second.Token, "acme")
	assert.NoError(t, err)

	active, err := manager.ActiveTokens(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, second.Token, active[0].Token)
}

// TestPurpose: Validates the single-active-token invariant when rotations race.
// Scope: Unit Test
// Expected: With many concurrent sign-ins for the same (username, tenant),
// exactly one token is active at the end; all others are revoked.
// Test Case ID: RT-05
func TestRefreshManager_ConcurrentRotation(t *testing.T) {
	repo := newFakeRefreshRepo()
	manager := NewManager(repo, 720*time.Hour, nopAudit{})
	ctx := context.Background()

	const rotations = 32
	var wg sync.WaitGroup
	for i := 0; i < rotations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Generate(ctx, "alice", "acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := manager.ActiveTokens(ctx, "alice", "acme")
	require.NoError(t, err)
	require.Len(t, active, 1)

	// The survivor must be redeemable; every other token must be revoked.
	_, err = manager.ValidateForTenant(ctx, active[0].Token, "acme")
	assert.NoError(t, err)

	repo.mu.Lock()
	total := len(repo.tokens)
	repo.mu.Unlock()
	assert.Equal(t, rotations, total)
}

// TestPurpose: Validates tenant scoping of refresh tokens.
// Scope: Unit Test
// Expected: A token issued for one tenant never validates against another; per-tenant
// tokens for the same username do not revoke each other.
// Test Case ID: RT-02
func TestRefreshManager_TenantScoping(t *testing.T) {
	repo := newFakeRefreshRepo()
	manager := NewManager(repo, 720*time.Hour, nopAudit{})
	ctx := context.Background()

	acme, err := manager.Generate(ctx, "alice", "acme")
	require.NoError(t, err)
	globex, err := manager.Generate(ctx, "alice", "globex")
	require.NoError(t, err)

	_, err = manager.ValidateForTenant(ctx, acme.Token, "globex")
	assert.ErrorIs(t, err, ErrTokenTenantMismatch)

	_, err = manager.ValidateForTenant(ctx, acme.Token, "acme")
	assert.NoError(t, err)
	_, err = manager.ValidateForTenant(ctx, globex.Token, "globex")
	assert.NoError(t, err)
}

// TestPurpose: Validates expiry handling and cleanup of refresh tokens.
// Scope: Unit Test
// Expected: Expired tokens fail validation and are removed by CleanExpired.
// Test Case ID: RT-03
func TestRefreshManager_Expiry(t *testing.T) {
	repo := newFakeRefreshRepo()
	manager := NewManager(repo, time.Hour, nopAudit{})
	ctx := context.Background()

	issuedAt := time.Now()
	manager.now = func() time.Time { return issuedAt }

	rt, err := manager.Generate(ctx, "alice", "acme")
	require.NoError(t, err)

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = manager.ValidateForTenant(ctx, rt.Token, "acme")
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	removed, err := manager.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = manager.ValidateForTenant(ctx, rt.Token, "acme")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
}

// TestPurpose: Validates idempotent revocation.
// Scope: Unit Test
// Expected: Revoking an unknown or already-revoked token is a no-op.
// Test Case ID: RT-04
func TestRefreshManager_RevokeIdempotent(t *testing.T) {
	repo := newFakeRefreshRepo()
	manager := NewManager(repo, time.Hour, nopAudit{})
	ctx := context.Background()

	assert.NoError(t, manager.Revoke(ctx, "never-issued"))

	rt, err := manager.Generate(ctx, "alice", "acme")
	require.NoError(t, err)
	assert.NoError(t, manager.Revoke(ctx, rt.Token))
	assert.NoError(t, manager.Revoke(ctx, rt.Token))

	_, err = manager.ValidateForTenant(ctx, rt.Token, "acme")
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}
