package authz

import (
	"context"
	"testing"

	"github.com/keyfold/keyfold/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRoleRepo struct {
	mock.Mock
}

func (m *mockRoleRepo) Create(ctx context.Context, role *GlobalRole) error {
	args := m.Called(ctx, role)
	return args.Error(0)
}

func (m *mockRoleRepo) GetByName(ctx context.Context, name RoleName) (*GlobalRole, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GlobalRole), args.Error(1)
}

func (m *mockRoleRepo) ExistsByName(ctx context.Context, name RoleName) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoleRepo) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	args := m.Called(ctx, roleID, permissionIDs)
	return args.Error(0)
}

func (m *mockRoleRepo) ListActive(ctx context.Context) ([]*GlobalRole, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*GlobalRole), args.Error(1)
}

type mockPermRepo struct {
	mock.Mock
}

func (m *mockPermRepo) Create(ctx context.Context, p *Permission) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPermRepo) GetByCode(ctx context.Context, code string) (*Permission, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Permission), args.Error(1)
}

func (m *mockPermRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *mockPermRepo) List(ctx context.Context) ([]*Permission, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*Permission), args.Error(1)
}

type mockBindingRepo struct {
	mock.Mock
}

func (m *mockBindingRepo) Upsert(ctx context.Context, binding *UserTenantRole) error {
	args := m.Called(ctx, binding)
	return args.Error(0)
}

func (m *mockBindingRepo) Get(ctx context.Context, userID, tenantID string) (*UserTenantRole, error) {
	args := m.Called(ctx, userID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserTenantRole), args.Error(1)
}

func (m *mockBindingRepo) ListByUser(ctx context.Context, userID string) ([]*UserTenantRole, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]*UserTenantRole), args.Error(1)
}

func (m *mockBindingRepo) ListByTenant(ctx context.Context, tenantID string) ([]*UserTenantRole, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]*UserTenantRole), args.Error(1)
}

func (m *mockBindingRepo) Delete(ctx context.Context, userID, tenantID string) error {
	args := m.Called(ctx, userID, tenantID)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func newTestService() (*Service, *mockRoleRepo, *mockPermRepo, *mockBindingRepo, *mockAudit) {
	roleRepo := new(mockRoleRepo)
	permRepo := new(mockPermRepo)
	bindingRepo := new(mockBindingRepo)
	auditLogger := new(mockAudit)
	return NewService(roleRepo, permRepo, bindingRepo, auditLogger), roleRepo, permRepo, bindingRepo, auditLogger
}

// TestPurpose: Validates that role catalog seeding is idempotent across restarts.
// Scope: Unit Test
// Expected: Existing roles are skipped; only missing roles are created.
// Test Case ID: AUTHZ-01
func TestAuthz_InitializeGlobalRoles_Idempotent(t *testing.T) {
	service, roleRepo, _, _, _ := newTestService()
	ctx := context.Background()

	roleRepo.On("ExistsByName", ctx, RoleUser).Return(true, nil)
	roleRepo.On("ExistsByName", ctx, RoleModerator).Return(true, nil)
	roleRepo.On("ExistsByName", ctx, RoleAdmin).Return(false, nil)
	roleRepo.On("ExistsByName", ctx, RoleSuperAdmin).Return(true, nil)
	roleRepo.On("Create", ctx, mock.MatchedBy(func(r *GlobalRole) bool {
		return r.Name == RoleAdmin && r.Active
	})).Return(nil)

	err := service.InitializeGlobalRoles(ctx)
	assert.NoError(t, err)
	roleRepo.AssertNumberOfCalls(t, "Create", 1)
}

// TestPurpose: Validates strict role-name parsing including the accepted aliases.
// Scope: Unit Test
// Expected: Aliases resolve to catalog roles; anything else is ErrRoleNotFound.
// Test Case ID: AUTHZ-02
func TestAuthz_ParseRoleName(t *testing.T) {
	for in, want := range map[string]RoleName{
		"user":        RoleUser,
		"USER":        RoleUser,
		"mod":         RoleModerator,
		"moderator":   RoleModerator,
		"admin":       RoleAdmin,
		"super_admin": RoleSuperAdmin,
		"superadmin":  RoleSuperAdmin,
		" Admin ":     RoleAdmin,
	} {
		got, err := ParseRoleName(in)
		assert.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	for _, in := range []string{"", "root", "owner", "ADMINISTRATOR"} {
		_, err := ParseRoleName(in)
		assert.ErrorIs(t, err, ErrRoleNotFound, "input %q", in)
	}
}

// TestPurpose: Validates that one unknown role name fails the whole assignment request.
// Scope: Unit Test
// Expected: ErrRoleNotFound, and no binding is written.
// Test Case ID: AUTHZ-03
func TestAuthz_AssignRolesToUser_UnknownRoleRejected(t *testing.T) {
	service, roleRepo, _, bindingRepo, _ := newTestService()
	ctx := context.Background()

	roleRepo.On("GetByName", ctx, RoleUser).Return(&GlobalRole{ID: "r-user", Name: RoleUser, Active: true}, nil)

	_, err := service.AssignRolesToUser(ctx, "u-1", "acme", []string{"user", "owner"})
	assert.ErrorIs(t, err, ErrRoleNotFound)
	bindingRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that re-assignment replaces the role set instead of merging.
// Scope: Unit Test
// Expected: The upserted binding holds exactly the new roles.
// Test Case ID: AUTHZ-04
func TestAuthz_AssignRolesToUser_ReplacesRoleSet(t *testing.T) {
	service, roleRepo, _, bindingRepo, auditLogger := newTestService()
	ctx := context.Background()

	existing := &UserTenantRole{
		ID:       "b-1",
		UserID:   "u-1",
		TenantID: "acme",
		Roles:    []GlobalRole{{ID: "r-admin", Name: RoleAdmin, Active: true}},
	}

	roleRepo.On("GetByName", ctx, RoleModerator).Return(&GlobalRole{ID: "r-mod", Name: RoleModerator, Active: true}, nil)
	bindingRepo.On("Get", ctx, "u-1", "acme").Return(existing, nil)
	bindingRepo.On("Upsert", ctx, mock.MatchedBy(func(b *UserTenantRole) bool {
		return b.ID == "b-1" && len(b.Roles) == 1 && b.Roles[0].Name == RoleModerator
	})).Return(nil)
	auditLogger.On("Log", ctx, mock.Anything).Return()

	binding, err := service.AssignRolesToUser(ctx, "u-1", "acme", []string{"moderator"})
	assert.NoError(t, err)
	assert.Len(t, binding.Roles, 1)
	assert.False(t, binding.HasRole(RoleAdmin))
	bindingRepo.AssertExpectations(t)
}

// TestPurpose: Validates permission resolution across multiple roles.
// Scope: Unit Test
// Expected: Sorted union of distinct codes from active roles and active permissions only.
// Test Case ID: AUTHZ-05
func TestAuthz_ResolvePermissions_SortedDistinctUnion(t *testing.T) {
	service, _, _, bindingRepo, _ := newTestService()
	ctx := context.Background()

	binding := &UserTenantRole{
		UserID:   "u-1",
		TenantID: "acme",
		Roles: []GlobalRole{
			{
				Name:   RoleAdmin,
				Active: true,
				Permissions: []Permission{
					{Code: "MANAGE_USERS", Active: true},
					{Code: "VIEW_DASHBOARD", Active: true},
					{Code: "DISABLED_THING", Active: false},
				},
			},
			{
				Name:   RoleUser,
				Active: true,
				Permissions: []Permission{
					{Code: "VIEW_DASHBOARD", Active: true},
					{Code: "VIEW_REPORTS", Active: true},
				},
			},
			{
				Name:   RoleModerator,
				Active: false,
				Permissions: []Permission{
					{Code: "MODERATE_CONTENT", Active: true},
				},
			},
		},
	}
	bindingRepo.On("Get", ctx, "u-1", "acme").Return(binding, nil)

	codes, err := service.ResolvePermissions(ctx, "u-1", "acme")
	assert.NoError(t, err)
	assert.Equal(t, []string{"MANAGE_USERS", "VIEW_DASHBOARD", "VIEW_REPORTS"}, codes)
}

// TestPurpose: Validates the unbound-user case of permission resolution.
// Scope: Unit Test
// Expected: An empty slice and no error when the user has no binding in the tenant.
// Test Case ID: AUTHZ-06
func TestAuthz_ResolvePermissions_NoBinding(t *testing.T) {
	service, _, _, bindingRepo, _ := newTestService()
	ctx := context.Background()

	bindingRepo.On("Get", ctx, "u-1", "acme").Return(nil, ErrBindingNotFound)

	codes, err := service.ResolvePermissions(ctx, "u-1", "acme")
	assert.NoError(t, err)
	assert.NotNil(t, codes)
	assert.Empty(t, codes)
}

// TestPurpose: Validates on-the-fly permission creation during role configuration.
// Scope: Unit Test
// Expected: Known codes are reused, unknown codes are created, duplicates collapse.
// Test Case ID: AUTHZ-07
func TestAuthz_UpsertPermissionsByCodes(t *testing.T) {
	service, _, permRepo, _, _ := newTestService()
	ctx := context.Background()

	permRepo.On("GetByCode", ctx, "VIEW_REPORTS").Return(&Permission{ID: "p-1", Code: "VIEW_REPORTS", Active: true}, nil)
	permRepo.On("GetByCode", ctx, "COMPONENT:NewPanel").Return(nil, ErrPermissionNotFound)
	permRepo.On("Create", ctx, mock.MatchedBy(func(p *Permission) bool {
		return p.Code == "COMPONENT:NewPanel" && p.Active
	})).Return(nil)

	perms, err := service.UpsertPermissionsByCodes(ctx, []string{"VIEW_REPORTS", "COMPONENT:NewPanel", "VIEW_REPORTS", ""})
	assert.NoError(t, err)
	assert.Len(t, perms, 2)
	permRepo.AssertNumberOfCalls(t, "Create", 1)
}
