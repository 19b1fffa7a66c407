package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	auditrepository "github.com/smallbiznis/quickcart/internal/audit/repository"
	auditservice "github.com/smallbiznis/quickcart/internal/audit/service"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/migration"
	"github.com/smallbiznis/quickcart/internal/organization/domain"
	"github.com/smallbiznis/quickcart/internal/organization/repository"
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	rbacrepository "github.com/smallbiznis/quickcart/internal/rbac/repository"
	"github.com/smallbiznis/quickcart/internal/seed"
	"github.com/smallbiznis/quickcart/pkg/db"
	"github.com/smallbiznis/quickcart/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
	org  *domain.Organisation
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
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:           conn,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         repository.NewRepository(conn),
		Roles:        rbacrepository.NewRepository(conn, config.Config{}),
		Catalog:      catalog.New(log, enforcer),
		AccessConfig: config.NewStaticAccessConfigHolder(config.DefaultAccessConfig()),
		AuditSvc:     auditSvc,
	})

	org, err := svc.CreateOrganisation(ctx, domain.CreateOrganisationRequest{Name: "Acme Foods"})
	require.NoError(t, err)

	return &fixture{svc: svc, db: conn, node: node, org: org}
}

func (f *fixture) createUser(t *testing.T, name string) snowflake.ID {
	t.Helper()
	user := authdomain.User{
		ID:          f.node.Generate(),
		Email:       name + "@example.com",
		DisplayName: name,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user.ID
}

func (f *fixture) createBranch(t *testing.T, name string) *domain.Branch {
	t.Helper()
	branch, err := f.svc.CreateBranch(context.Background(), domain.CreateBranchRequest{
		OrganisationID: f.org.ID,
		Name:           name,
	})
	require.NoError(t, err)
	return branch
}

func (f *fixture) policyKeys(t *testing.T, policyID snowflake.ID) []rbacdomain.PermissionKey {
	t.Helper()
	policy, err := repository.NewRepository(f.db).FindPolicy(context.Background(), policyID)
	require.NoError(t, err)
	return policy.PermissionKeys()
}

func TestCreateOrganisationUserBuildsPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t, "Alice")

	member, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         userID,
		RoleKey:        rbacdomain.RoleOrganisationManager,
		Extras:         []rbacdomain.PermissionKey{rbacdomain.PermAppAccess, rbacdomain.PermAppAccess},
	})
	require.NoError(t, err)
	require.Equal(t, "Alice's policy for Acme Foods", member.Policy.PolicyName)

	require.ElementsMatch(t, []rbacdomain.PermissionKey{
		rbacdomain.PermOrganisationView,
		rbacdomain.PermBranchView,
		rbacdomain.PermUserView,
		rbacdomain.PermPropertyView,
		rbacdomain.PermAppAccess,
	}, f.policyKeys(t, member.PolicyID))

	var events []domain.OutboxEvent
	require.NoError(t, f.db.Where("topic = ?", domain.TopicMembershipGranted).Find(&events).Error)
	require.Len(t, events, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	require.Equal(t, "organisation_manager", payload["role_key"])

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", auditdomain.ActionMembershipGranted).Find(&logs).Error)
	require.Len(t, logs, 1)
}

func TestCreateOrganisationUserRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t, "Bob")

	req := domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         userID,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
	}
	_, err := f.svc.CreateOrganisationUser(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.CreateOrganisationUser(ctx, req)
	require.ErrorIs(t, err, domain.ErrMembershipExists)

	var policies int64
	require.NoError(t, f.db.Model(&rbacdomain.Policy{}).Count(&policies).Error)
	require.Equal(t, int64(1), policies)
}

func TestCreateOrganisationUserRoleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t, "Carol")

	for _, key := range []rbacdomain.RoleKey{rbacdomain.RoleSystem, rbacdomain.RoleBranchAdmin, "made_up"} {
		_, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
			OrganisationID: f.org.ID,
			UserID:         userID,
			RoleKey:        key,
		})
		require.ErrorIs(t, err, domain.ErrInvalidRole, string(key))
	}

	_, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         userID,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
		Extras:         []rbacdomain.PermissionKey{rbacdomain.PermUserCreate},
	})
	require.ErrorIs(t, err, domain.ErrInvalidPermission)

	_, err = f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         f.node.Generate(),
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
	})
	require.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestCreateBranchUserTradeCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.createBranch(t, "North")
	userID := f.createUser(t, "Dave")

	_, err := f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID,
		UserID:   userID,
		RoleKey:  rbacdomain.RoleBranchAuditor,
	})
	var verr *rbacdomain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, rbacdomain.CodeTradeCodesRequired, verr.Code)

	_, err = f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID:   branch.ID,
		UserID:     userID,
		RoleKey:    rbacdomain.RoleBranchAuditor,
		TradeCodes: []string{"ELEC"},
	})
	require.ErrorIs(t, err, domain.ErrInvalidTradeCode)

	_, err = f.svc.CreateTradeCode(ctx, "elec", "Electrical")
	require.NoError(t, err)
	_, err = f.svc.CreateTradeCode(ctx, "ELEC", "Electrical")
	require.ErrorIs(t, err, domain.ErrTradeCodeExists)

	member, err := f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID:   branch.ID,
		UserID:     userID,
		RoleKey:    rbacdomain.RoleBranchAuditor,
		TradeCodes: []string{"elec", " ELEC "},
	})
	require.NoError(t, err)
	require.Equal(t, "Dave's policy for North", member.Policy.PolicyName)

	stored, err := repository.NewRepository(f.db).FindBranchUser(ctx, branch.ID, userID)
	require.NoError(t, err)
	require.Len(t, stored.TradeCodes, 1)
	require.Equal(t, "ELEC", stored.TradeCodes[0].Code)
	require.Equal(t, rbacdomain.RoleBranchAuditor, stored.Role.RoleKey)
}

func TestCreateBranchUserAcceptsPropertyRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.createBranch(t, "South")
	userID := f.createUser(t, "Erin")

	member, err := f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID,
		UserID:   userID,
		RoleKey:  rbacdomain.RolePropertyOwner,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []rbacdomain.PermissionKey{
		rbacdomain.PermPropertyView,
		rbacdomain.PermCommonAreaDefectApproval,
	}, f.policyKeys(t, member.PolicyID))

	_, err = f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID,
		UserID:   f.createUser(t, "Frank"),
		RoleKey:  rbacdomain.RoleOrganisationAdmin,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestSyncPolicyPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t, "Grace")

	member, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         userID,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
	})
	require.NoError(t, err)

	policy, err := f.svc.SyncPolicyPermissions(ctx, member.PolicyID, []rbacdomain.PermissionKey{
		rbacdomain.PermOrganisationView,
		rbacdomain.PermWebAccess,
	}, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []rbacdomain.PermissionKey{rbacdomain.PermOrganisationView, rbacdomain.PermWebAccess}, policy.PermissionKeys())
	require.ElementsMatch(t, []rbacdomain.PermissionKey{rbacdomain.PermOrganisationView, rbacdomain.PermWebAccess}, f.policyKeys(t, member.PolicyID))

	_, err = f.svc.SyncPolicyPermissions(ctx, member.PolicyID, []rbacdomain.PermissionKey{"launch_rockets"}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidPermission)

	_, err = f.svc.SyncPolicyPermissions(ctx, f.node.Generate(), nil, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveBranchUserDeletesPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.createBranch(t, "East")
	userID := f.createUser(t, "Heidi")

	_, err := f.svc.CreateTradeCode(ctx, "PLMB", "Plumbing")
	require.NoError(t, err)
	member, err := f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID:   branch.ID,
		UserID:     userID,
		RoleKey:    rbacdomain.RoleBranchSubContractor,
		TradeCodes: []string{"PLMB"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveBranchUser(ctx, branch.ID, userID, nil))
	require.ErrorIs(t, f.svc.RemoveBranchUser(ctx, branch.ID, userID, nil), domain.ErrNotFound)

	var policies int64
	require.NoError(t, f.db.Model(&rbacdomain.Policy{}).Where("id = ?", member.PolicyID).Count(&policies).Error)
	require.Zero(t, policies)

	var links int64
	require.NoError(t, f.db.Table("branch_user_trade_codes").Where("branch_user_id = ?", member.ID).Count(&links).Error)
	require.Zero(t, links)

	var revoked int64
	require.NoError(t, f.db.Model(&domain.OutboxEvent{}).Where("topic = ?", domain.TopicMembershipRevoked).Count(&revoked).Error)
	require.Equal(t, int64(1), revoked)
}

func TestRemoveOrganisationUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.createUser(t, "Ivan")

	member, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         userID,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveOrganisationUser(ctx, f.org.ID, userID, nil))

	var count int64
	require.NoError(t, f.db.Model(&domain.OrganisationUser{}).Where("id = ?", member.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, f.db.Table("policy_permissions").Where("policy_id = ?", member.PolicyID).Count(&count).Error)
	require.Zero(t, count)
}

func TestBranchGrantorCannotReachAboveItsLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.createBranch(t, "North")
	owner := f.createUser(t, "Judy")
	staff := f.createUser(t, "Karl")
	grantor := &domain.Grantor{UserID: f.createUser(t, "Liam"), Level: rbacdomain.AccessLevelBranch}

	_, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         staff,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
		Grantor:        grantor,
	})
	require.ErrorIs(t, err, domain.ErrGrantExceedsCaller)

	ownerMember, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID,
		UserID:         owner,
		RoleKey:        rbacdomain.RoleOrganisationAdmin,
	})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.RemoveOrganisationUser(ctx, f.org.ID, owner, grantor), domain.ErrGrantExceedsCaller)

	// the owner policy carries organisation keys, so a branch grantor may not rewrite it
	_, err = f.svc.SyncPolicyPermissions(ctx, ownerMember.PolicyID, []rbacdomain.PermissionKey{rbacdomain.PermBranchView}, grantor)
	require.ErrorIs(t, err, domain.ErrGrantExceedsCaller)
	require.Contains(t, f.policyKeys(t, ownerMember.PolicyID), rbacdomain.PermOrganisationUpdate)

	staffMember, err := f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID,
		UserID:   staff,
		RoleKey:  rbacdomain.RoleBranchManager,
		Extras:   []rbacdomain.PermissionKey{rbacdomain.PermAppAccess},
		Grantor:  grantor,
	})
	require.NoError(t, err)

	_, err = f.svc.SyncPolicyPermissions(ctx, staffMember.PolicyID, []rbacdomain.PermissionKey{rbacdomain.PermBranchCreate}, grantor)
	require.ErrorIs(t, err, domain.ErrGrantExceedsCaller)

	_, err = f.svc.SyncPolicyPermissions(ctx, staffMember.PolicyID, []rbacdomain.PermissionKey{rbacdomain.PermBranchView, rbacdomain.PermUserCreate}, grantor)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveBranchUser(ctx, branch.ID, staff, grantor))
}

func TestListOrganisationsAndMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	branch := f.createBranch(t, "West")

	alice := f.createUser(t, "Alice")
	bob := f.createUser(t, "Bob")
	carol := f.createUser(t, "Carol")

	_, err := f.svc.CreateOrganisationUser(ctx, domain.CreateOrganisationUserRequest{
		OrganisationID: f.org.ID, UserID: alice, RoleKey: rbacdomain.RoleOrganisationAdmin,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID, UserID: alice, RoleKey: rbacdomain.RoleBranchManager,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID, UserID: bob, RoleKey: rbacdomain.RoleBranchAdmin,
	})
	require.NoError(t, err)
	_, err = f.svc.CreateBranchUser(ctx, domain.CreateBranchUserRequest{
		BranchID: branch.ID, UserID: carol, RoleKey: rbacdomain.RolePropertyOwner,
	})
	require.NoError(t, err)

	orgs, err := f.svc.ListOrganisationsByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	require.Equal(t, f.org.ID.String(), orgs[0].ID)
	require.Equal(t, "acme-foods", orgs[0].Slug)

	first, err := f.svc.ListMembers(ctx, f.org.ID, pagination.Pagination{PageSize: 3})
	require.NoError(t, err)
	require.Len(t, first.Members, 3)
	require.True(t, first.PageInfo.HasMore)
	require.Equal(t, "organisation_admin", first.Members[0].RoleKey)
	require.Empty(t, first.Members[0].BranchID)
	require.Equal(t, branch.ID.String(), first.Members[1].BranchID)

	second, err := f.svc.ListMembers(ctx, f.org.ID, pagination.Pagination{PageSize: 3, PageToken: first.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Members, 1)
	require.False(t, second.PageInfo.HasMore)
	require.Equal(t, carol.String(), second.Members[0].UserID)

	_, err = f.svc.ListMembers(ctx, f.org.ID, pagination.Pagination{PageToken: "%%%"})
	require.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
