package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	auditrepository "github.com/smallbiznis/quickcart/internal/audit/repository"
	auditservice "github.com/smallbiznis/quickcart/internal/audit/service"
	"github.com/smallbiznis/quickcart/internal/auth/ability"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/authorization/domain"
	"github.com/smallbiznis/quickcart/internal/authorization/mocks"
	"github.com/smallbiznis/quickcart/internal/authorization/repository"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/migration"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/quickcart/internal/organization/repository"
	organizationservice "github.com/smallbiznis/quickcart/internal/organization/service"
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	rbacrepository "github.com/smallbiznis/quickcart/internal/rbac/repository"
	"github.com/smallbiznis/quickcart/internal/seed"
	"github.com/smallbiznis/quickcart/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc  domain.Service
	orgs organizationdomain.Service
	db   *gorm.DB
	node *snowflake.Node
	org  *organizationdomain.Organisation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, seed.EnsureCatalog(ctx, conn, node))

	log := zaptest.NewLogger(t)
	enforcer, err := catalog.NewEnforcer(conn)
	require.NoError(t, err)
	cat := catalog.New(log, enforcer)
	roles := rbacrepository.NewRepository(conn, config.Config{})
	accessConfig := config.NewStaticAccessConfigHolder(config.DefaultAccessConfig())
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	orgs := organizationservice.NewService(organizationservice.Params{
		DB:           conn,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         organizationrepository.NewRepository(conn),
		Roles:        roles,
		Catalog:      cat,
		AccessConfig: accessConfig,
	})

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		Log:          log,
		Repo:         repository.NewRepository(conn),
		Roles:        roles,
		Catalog:      cat,
		AccessConfig: accessConfig,
		AuditSvc:     auditSvc,
	})

	org, err := orgs.CreateOrganisation(ctx, organizationdomain.CreateOrganisationRequest{Name: "Acme Foods"})
	require.NoError(t, err)

	return &fixture{svc: svc, orgs: orgs, db: conn, node: node, org: org}
}

func (f *fixture) createUser(t *testing.T, name string) *authdomain.Principal {
	t.Helper()
	user := authdomain.User{
		ID:          f.node.Generate(),
		Email:       name + "@example.com",
		DisplayName: name,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return &authdomain.Principal{UserID: user.ID, Guard: authdomain.GuardUser, Abilities: ability.Empty()}
}

func (f *fixture) createBranch(t *testing.T, orgID snowflake.ID, name string) *organizationdomain.Branch {
	t.Helper()
	branch, err := f.orgs.CreateBranch(context.Background(), organizationdomain.CreateBranchRequest{
		OrganisationID: orgID,
		Name:           name,
	})
	require.NoError(t, err)
	return branch
}

func (f *fixture) grantOrganisation(t *testing.T, p *authdomain.Principal, orgID snowflake.ID, roleKey rbacdomain.RoleKey, extras ...rbacdomain.PermissionKey) {
	t.Helper()
	_, err := f.orgs.CreateOrganisationUser(context.Background(), organizationdomain.CreateOrganisationUserRequest{
		OrganisationID: orgID,
		UserID:         p.UserID,
		RoleKey:        roleKey,
		Extras:         extras,
	})
	require.NoError(t, err)
}

func (f *fixture) grantBranch(t *testing.T, p *authdomain.Principal, branchID snowflake.ID, roleKey rbacdomain.RoleKey, extras ...rbacdomain.PermissionKey) {
	t.Helper()
	_, err := f.orgs.CreateBranchUser(context.Background(), organizationdomain.CreateBranchUserRequest{
		BranchID: branchID,
		UserID:   p.UserID,
		RoleKey:  roleKey,
		Extras:   extras,
	})
	require.NoError(t, err)
}

func countKey(keys []rbacdomain.PermissionKey, key rbacdomain.PermissionKey) int {
	n := 0
	for _, k := range keys {
		if k == key {
			n++
		}
	}
	return n
}

func roleKeys(roles []rbacdomain.Role) []rbacdomain.RoleKey {
	out := make([]rbacdomain.RoleKey, 0, len(roles))
	for _, role := range roles {
		out = append(out, role.RoleKey)
	}
	return out
}

func TestResolveSystemAdminSkipsMemberships(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	require.NoError(t, seed.EnsureCatalog(context.Background(), conn, node))

	log := zaptest.NewLogger(t)
	enforcer, err := catalog.NewEnforcer(conn)
	require.NoError(t, err)

	// Any membership query fails the test: the mock has no expectations.
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)

	svc := NewService(Params{
		Log:     log,
		Repo:    repo,
		Roles:   rbacrepository.NewRepository(conn, config.Config{}),
		Catalog: catalog.New(log, enforcer),
	})

	admin := &authdomain.Principal{UserID: 77, Guard: authdomain.GuardAdmin, Abilities: ability.Empty()}
	cases := []struct {
		name   string
		levels domain.LevelSelector
		perms  domain.PermissionSelector
	}{
		{name: "wildcards", levels: domain.AllLevels(), perms: domain.AllPermissions()},
		{name: "narrow", levels: domain.Levels(rbacdomain.AccessLevelBranch), perms: domain.Permissions(rbacdomain.PermUserView)},
		{name: "empty", levels: domain.Levels(), perms: domain.Permissions()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := svc.Resolve(context.Background(), admin, tc.levels, tc.perms, domain.ScopeHint{})
			require.NoError(t, err)
			assert.True(t, res.IsSystemAdmin)
			assert.ElementsMatch(t, []rbacdomain.PermissionKey{
				rbacdomain.PermPropertyDefectApproval,
				rbacdomain.PermCommonAreaDefectApproval,
			}, res.Permissions)
			require.NotNil(t, res.Role)
			assert.Equal(t, rbacdomain.RoleSystem, res.Role.RoleKey)
			assert.Empty(t, res.UserAccess.Organisation)
		})
	}
}

func TestResolveDedupesPermissions(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "Alice")
	branch := f.createBranch(t, f.org.ID, "Harbour")

	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationManager, rbacdomain.PermWebAccess)
	f.grantBranch(t, user, branch.ID, rbacdomain.RoleBranchManager, rbacdomain.PermWebAccess)

	res, err := f.svc.Resolve(context.Background(), user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, 1, countKey(res.Permissions, rbacdomain.PermWebAccess))
	assert.Equal(t, 1, countKey(res.Permissions, rbacdomain.PermBranchView))
	assert.True(t, res.HasPermission(rbacdomain.PermOrganisationView))
	assert.Equal(t, []snowflake.ID{f.org.ID}, res.UserAccess.Organisation)
	assert.Equal(t, []snowflake.ID{branch.ID}, res.UserAccess.Branch)
	assert.Empty(t, res.UserAccess.Property)
}

func TestResolveFiltersRequestedPermissions(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "Bruno")
	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationAdmin, rbacdomain.PermAppAccess)

	res, err := f.svc.Resolve(context.Background(), user, domain.AllLevels(),
		domain.Permissions(rbacdomain.PermUserCreate, rbacdomain.PermWebAccess), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, []rbacdomain.PermissionKey{rbacdomain.PermUserCreate}, res.Permissions)
}

func TestResolveUnionsRolesPerOrganisation(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "Chen")
	north := f.createBranch(t, f.org.ID, "North")
	south := f.createBranch(t, f.org.ID, "South")

	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationManager)
	f.grantBranch(t, user, north.ID, rbacdomain.RoleBranchManager)
	f.grantBranch(t, user, south.ID, rbacdomain.RoleBranchManager)

	res, err := f.svc.Resolve(context.Background(), user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)

	bucket, ok := res.ResourceRoles[f.org.ID]
	require.True(t, ok)
	assert.Equal(t, "Acme Foods", bucket.Name)
	assert.ElementsMatch(t, []rbacdomain.RoleKey{
		rbacdomain.RoleOrganisationManager,
		rbacdomain.RoleBranchManager,
	}, roleKeys(bucket.Roles))
	assert.Len(t, res.Roles, 2)
	assert.Equal(t, []rbacdomain.AccessLevel{rbacdomain.AccessLevelOrganisation, rbacdomain.AccessLevelBranch}, res.AccessLevels)
	assert.Len(t, res.UserAccess.Branch, 2)
}

func TestResolveLevelPriority(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "Dara")
	branch := f.createBranch(t, f.org.ID, "Harbour")
	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationAdmin)
	f.grantBranch(t, user, branch.ID, rbacdomain.RoleBranchAdmin)

	ctx := context.Background()
	res, err := f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{
		LevelPriority: []rbacdomain.AccessLevel{rbacdomain.AccessLevelBranch, rbacdomain.AccessLevelOrganisation},
	})
	require.NoError(t, err)
	assert.Equal(t, rbacdomain.RoleBranchAdmin, res.Role.RoleKey)

	res, err = f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{
		LevelPriority: []rbacdomain.AccessLevel{rbacdomain.AccessLevelOrganisation, rbacdomain.AccessLevelBranch},
	})
	require.NoError(t, err)
	assert.Equal(t, rbacdomain.RoleOrganisationAdmin, res.Role.RoleKey)

	// The configured default puts branch ahead of organisation.
	res, err = f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, rbacdomain.RoleBranchAdmin, res.Role.RoleKey)

	// Levels outside the selector never become the effective role.
	res, err = f.svc.Resolve(ctx, user, domain.Levels(rbacdomain.AccessLevelOrganisation), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, rbacdomain.RoleOrganisationAdmin, res.Role.RoleKey)
	assert.Equal(t, []rbacdomain.AccessLevel{rbacdomain.AccessLevelOrganisation}, res.AccessLevels)
}

func TestResolveForbiddenWithoutMatchingRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "Eve")
	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationManager)

	_, err := f.svc.Resolve(ctx, user, domain.Levels(rbacdomain.AccessLevelBranch), domain.AllPermissions(), domain.ScopeHint{})
	require.ErrorIs(t, err, domain.ErrForbidden)

	other, err := f.orgs.CreateOrganisation(ctx, organizationdomain.CreateOrganisationRequest{Name: "Other Foods"})
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{OrganisationID: &other.ID})
	require.ErrorIs(t, err, domain.ErrForbidden)

	stranger := f.createUser(t, "Stranger")
	_, err = f.svc.Resolve(ctx, stranger, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.ErrorIs(t, err, domain.ErrForbidden)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionAccessDenied).Find(&logs).Error)
	assert.Len(t, logs, 3)

	_, err = f.svc.Resolve(ctx, nil, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestResolveCurrentRoleNarrowsMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "Fern")
	branch := f.createBranch(t, f.org.ID, "Harbour")
	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationManager)
	f.grantBranch(t, user, branch.ID, rbacdomain.RoleBranchAdmin)

	roleKey := string(rbacdomain.RoleBranchAdmin)
	user.Abilities = ability.Encode(ability.Abilities{RoleKey: &roleKey, OrganisationID: &f.org.ID})

	res, err := f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, []rbacdomain.RoleKey{rbacdomain.RoleBranchAdmin}, roleKeys(res.Roles))
	assert.Empty(t, res.UserAccess.Organisation)

	res, err = f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{SkipCurrentRole: true})
	require.NoError(t, err)
	assert.Len(t, res.Roles, 2)

	missing := "retired_role"
	user.Abilities = ability.Encode(ability.Abilities{RoleKey: &missing})
	_, err = f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveWildcardMatchesEnumeratedLevels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "Gil")
	branch := f.createBranch(t, f.org.ID, "Harbour")
	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationManager, rbacdomain.PermAppAccess)
	f.grantBranch(t, user, branch.ID, rbacdomain.RoleBranchManager)

	all, err := f.svc.Resolve(ctx, user, domain.AllLevels(), domain.AllPermissions(), domain.ScopeHint{})
	require.NoError(t, err)
	enumerated, err := f.svc.Resolve(ctx, user, domain.Levels(rbacdomain.AllAccessLevels...), domain.Permissions(rbacdomain.AllPermissionKeys...), domain.ScopeHint{})
	require.NoError(t, err)
	assert.Equal(t, all, enumerated)
}

func TestResolveFoldsTokenOrganisation(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	log := zaptest.NewLogger(t)
	enforcer, err := catalog.NewEnforcer(conn)
	require.NoError(t, err)

	row := organizationdomain.OrganisationUser{
		ID:             1,
		UserID:         5,
		OrganisationID: 42,
		Role: &rbacdomain.Role{
			ID:              9,
			RoleKey:         rbacdomain.RoleOrganisationManager,
			RoleAccessLevel: rbacdomain.AccessLevelOrganisation,
		},
	}
	override := snowflake.ID(77)
	explicit := snowflake.ID(13)

	cases := []struct {
		name string
		hint domain.ScopeHint
		want *snowflake.ID
	}{
		{name: "token organisation", hint: domain.ScopeHint{}, want: &row.OrganisationID},
		{name: "skipped", hint: domain.ScopeHint{SkipCurrentOrganisation: true}, want: nil},
		{name: "override", hint: domain.ScopeHint{OverrideCurrentOrganisationID: &override}, want: &override},
		{name: "explicit wins", hint: domain.ScopeHint{OrganisationID: &explicit, SkipCurrentOrganisation: true}, want: &explicit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockRepository(ctrl)

			var seen domain.MembershipFilter
			repo.EXPECT().OrganisationMemberships(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, filter domain.MembershipFilter) ([]organizationdomain.OrganisationUser, error) {
					seen = filter
					return []organizationdomain.OrganisationUser{row}, nil
				})
			repo.EXPECT().BranchMemberships(gomock.Any(), gomock.Any()).Return(nil, nil)

			svc := NewService(Params{
				Log:     log,
				Repo:    repo,
				Roles:   rbacrepository.NewRepository(conn, config.Config{}),
				Catalog: catalog.New(log, enforcer),
			})

			principal := &authdomain.Principal{
				UserID:    5,
				Guard:     authdomain.GuardUser,
				Abilities: []string{ability.Unknown, "42", ability.Unknown},
			}
			_, err := svc.Resolve(context.Background(), principal, domain.AllLevels(), domain.AllPermissions(), tc.hint)
			require.NoError(t, err)
			assert.Equal(t, tc.want, seen.OrganisationID)
			assert.Nil(t, seen.RoleIDs)
		})
	}
}

func TestRoleForBranchRequiresTradeCodes(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)

	branchID := snowflake.ID(5)
	repo.EXPECT().FindBranchMembership(gomock.Any(), snowflake.ID(3), branchID).
		Return(&organizationdomain.BranchUser{
			ID:       1,
			UserID:   3,
			BranchID: branchID,
			Branch:   &organizationdomain.Branch{ID: branchID, OrganisationID: 9},
			Role: &rbacdomain.Role{
				ID:              4,
				RoleKey:         rbacdomain.RoleBranchAuditor,
				RoleAccessLevel: rbacdomain.AccessLevelBranch,
			},
		}, nil).Times(2)

	svc := NewService(Params{
		Log:          zaptest.NewLogger(t),
		Repo:         repo,
		AccessConfig: config.NewStaticAccessConfigHolder(config.DefaultAccessConfig()),
	})
	principal := &authdomain.Principal{UserID: 3, Guard: authdomain.GuardUser, Abilities: ability.Empty()}

	_, err := svc.RoleForBranch(context.Background(), principal, branchID, rbacdomain.RoleBranchAuditor)
	var validation *rbacdomain.ValidationError
	require.ErrorAs(t, err, &validation)

	membership, err := svc.RoleForBranch(context.Background(), principal, branchID)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(9), membership.OrganisationID)
}

func TestRoleForResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createUser(t, "Hana")
	branch := f.createBranch(t, f.org.ID, "Harbour")
	property, err := f.orgs.CreateProperty(ctx, organizationdomain.CreatePropertyRequest{BranchID: branch.ID, Name: "Unit 4"})
	require.NoError(t, err)

	f.grantOrganisation(t, user, f.org.ID, rbacdomain.RoleOrganisationAdmin)
	f.grantBranch(t, user, branch.ID, rbacdomain.RolePropertyOwner)

	org, err := f.svc.RoleForOrganisation(ctx, user, f.org.ID, rbacdomain.RoleOrganisationAdmin, rbacdomain.RoleOrganisationManager)
	require.NoError(t, err)
	assert.Equal(t, rbacdomain.RoleOrganisationAdmin, org.Role.RoleKey)
	assert.Contains(t, org.Permissions, rbacdomain.PermUserCreate)

	_, err = f.svc.RoleForOrganisation(ctx, user, f.org.ID, rbacdomain.RoleOrganisationManager)
	require.ErrorIs(t, err, domain.ErrForbidden)

	held, err := f.svc.RoleForProperty(ctx, user, property.ID, rbacdomain.RolePropertyOwner)
	require.NoError(t, err)
	require.NotNil(t, held.PropertyID)
	assert.Equal(t, property.ID, *held.PropertyID)
	assert.Equal(t, branch.ID, *held.BranchID)
	assert.Equal(t, f.org.ID, held.OrganisationID)

	_, err = f.svc.RoleForBranch(ctx, user, f.node.Generate())
	require.ErrorIs(t, err, domain.ErrForbidden)

	admin := &authdomain.Principal{UserID: 1, Guard: authdomain.GuardAdmin}
	_, err = f.svc.RoleForOrganisation(ctx, admin, f.org.ID)
	require.ErrorIs(t, err, domain.ErrSystemAdminNotAllowed)
}
