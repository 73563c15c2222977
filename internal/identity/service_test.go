package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/keyfold/keyfold/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID string) (*User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserRepo) GetByUsernameAndTenant(ctx context.Context, username, tenantID string) (*User, error) {
	args := m.Called(ctx, username, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *mockUserRepo) ListByUsername(ctx context.Context, username string) ([]*User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).([]*User), args.Error(1)
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) ExistsInTenant(ctx context.Context, username, tenantID string) (bool, error) {
	args := m.Called(ctx, username, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, u *User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

type mockAuditLogger struct {
	mock.Mock
}

func (m *mockAuditLogger) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

// TestPurpose: Validates user creation with credential hashing.
// Scope: Unit Test
// Expected: The stored user carries a UUIDv7 ID and an Argon2id hash, never
// the plaintext password.
// Test Case ID: ID-01
func TestIdentity_Service_Create(t *testing.T) {
	repo := new(mockUserRepo)
	auditLogger := new(mockAuditLogger)
	service := NewService(repo, testHasher(), auditLogger)
	ctx := context.Background()

	repo.On("ExistsByEmail", ctx, "alice@example.com").Return(false, nil)
	repo.On("ExistsInTenant", ctx, "alice", "acme").Return(false, nil)
	repo.On("Create", ctx, mock.MatchedBy(func(u *User) bool {
		uid, err := uuid.Parse(u.ID)
		if err != nil || uid.Version() != 7 {
			return false
		}
		return u.Username == "alice" && u.TenantID == "acme" && u.Active &&
			u.PasswordHash != "correct-horse-battery"
	})).Return(nil)
	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeUserCreated && e.TenantID == "acme"
	})).Return()

	user, err := service.Create(ctx, NewUser{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse-battery",
		TenantID: "acme",
	})
	require.NoError(t, err)

	ok, err := testHasher().Verify("correct-horse-battery", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	repo.AssertExpectations(t)
}

// TestPurpose: Validates input rejection on user creation.
// Scope: Unit Test
// Expected: Bad email, weak password and taken email each fail with their
// domain error before any row is written.
// Test Case ID: ID-02
func TestIdentity_Service_Create_Rejections(t *testing.T) {
	repo := new(mockUserRepo)
	auditLogger := new(mockAuditLogger)
	service := NewService(repo, testHasher(), auditLogger)
	ctx := context.Background()

	_, err := service.Create(ctx, NewUser{Username: "alice", Email: "not-an-email", Password: "longenough", TenantID: "acme"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = service.Create(ctx, NewUser{Username: "alice", Email: "alice@example.com", Password: "short", TenantID: "acme"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	repo.On("ExistsByEmail", ctx, "taken@example.com").Return(true, nil)
	_, err = service.Create(ctx, NewUser{Username: "alice", Email: "taken@example.com", Password: "longenough", TenantID: "acme"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that every credential failure collapses to one error.
// Scope: Unit Test
// Expected: Missing user, inactive user and wrong password all return
// ErrInvalidCredentials; the distinct reason appears only in the audit event.
// Test Case ID: ID-03
func TestIdentity_Service_VerifyCredentials_Collapses(t *testing.T) {
	repo := new(mockUserRepo)
	auditLogger := new(mockAuditLogger)
	service := NewService(repo, testHasher(), auditLogger)
	ctx := context.Background()

	hash, err := testHasher().Hash("correct-horse-battery")
	require.NoError(t, err)

	var reasons []string
	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		if e.Type != audit.TypeSignInFailed {
			return false
		}
		reasons = append(reasons, e.Metadata[audit.AttrReason].(string))
		return true
	})).Return()

	repo.On("GetByUsernameAndTenant", ctx, "ghost", "acme").Return(nil, ErrUserNotFound)
	_, err = service.VerifyCredentials(ctx, "ghost", "correct-horse-battery", "acme")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	repo.On("GetByUsernameAndTenant", ctx, "dormant", "acme").
		Return(&User{Username: "dormant", TenantID: "acme", PasswordHash: hash, Active: false}, nil)
	_, err = service.VerifyCredentials(ctx, "dormant", "correct-horse-battery", "acme")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	repo.On("GetByUsernameAndTenant", ctx, "alice", "acme").
		Return(&User{Username: "alice", TenantID: "acme", PasswordHash: hash, Active: true}, nil)
	_, err = service.VerifyCredentials(ctx, "alice", "wrong-password", "acme")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, []string{"user_not_found", "user_inactive", "invalid_password"}, reasons)

	user, err := service.VerifyCredentials(ctx, "alice", "correct-horse-battery", "acme")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

// TestPurpose: Validates the change-password flow.
// Scope: Unit Test
// Expected: The old password must verify and the new one must meet the policy
// before the hash is replaced.
// Test Case ID: ID-04
func TestIdentity_Service_ChangePassword(t *testing.T) {
	repo := new(mockUserRepo)
	auditLogger := new(mockAuditLogger)
	service := NewService(repo, testHasher(), auditLogger)
	ctx := context.Background()

	hash, err := testHasher().Hash("correct-horse-battery")
	require.NoError(t, err)
	stored := &User{ID: "u-1", Username: "alice", TenantID: "acme", PasswordHash: hash, Active: true}
	repo.On("GetByID", ctx, "u-1").Return(stored, nil)

	err = service.ChangePassword(ctx, "u-1", "wrong-password", "new-password-here")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = service.ChangePassword(ctx, "u-1", "correct-horse-battery", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)

	repo.On("Update", ctx, mock.MatchedBy(func(u *User) bool {
		ok, verr := testHasher().Verify("new-password-here", u.PasswordHash)
		return verr == nil && ok
	})).Return(nil)
	err = service.ChangePassword(ctx, "u-1", "correct-horse-battery", "new-password-here")
	assert.NoError(t, err)

	repo.AssertExpectations(t)
}
