package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	"github.com/smallbiznis/quickcart/internal/auth/ability"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/authorization/domain"
	"github.com/smallbiznis/quickcart/internal/config"
	obscontext "github.com/smallbiznis/quickcart/internal/observability/context"
	"github.com/smallbiznis/quickcart/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeAllowed = metrics.OutcomeAllowed
	outcomeDenied  = metrics.OutcomeDenied

	reasonSystemAdmin     = "system_admin"
	reasonMembership      = "membership"
	reasonUnauthenticated = "unauthenticated"
	reasonNoRole          = "no_matching_role"
	reasonUnknownRole     = "unknown_current_role"
	reasonError           = "error"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Repo         domain.Repository
	Roles        rbacdomain.Repository
	Catalog      *catalog.Catalog
	AccessConfig *config.AccessConfigHolder `optional:"true"`
	AuditSvc     auditdomain.Service        `optional:"true"`
	Metrics      *metrics.Metrics           `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	repo         domain.Repository
	roles        rbacdomain.Repository
	catalog      *catalog.Catalog
	accessConfig *config.AccessConfigHolder
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("authorization.service"),
		repo:         p.Repo,
		roles:        p.Roles,
		catalog:      p.Catalog,
		accessConfig: p.AccessConfig,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

// Resolve is the single authorization decision point. It is read-only apart from metrics and
// the audit entry written on denial.
func (s *Service) Resolve(ctx context.Context, principal *authdomain.Principal, levels domain.LevelSelector, perms domain.PermissionSelector, hint domain.ScopeHint) (*domain.Resolution, error) {
	if principal == nil || principal.UserID == 0 {
		s.metrics.RecordAccessDecision(ctx, "", outcomeDenied, reasonUnauthenticated)
		return nil, domain.ErrUnauthenticated
	}
	guard := string(principal.Guard)

	abilities := ability.Parse(principal.Abilities)
	organisationID := workingOrganisation(abilities, hint)

	if principal.IsAdmin() {
		res, err := s.systemAdmin(ctx, principal)
		if err != nil {
			s.metrics.RecordAccessDecision(ctx, guard, outcomeDenied, reasonError)
			return nil, err
		}
		s.metrics.RecordAccessDecision(ctx, guard, outcomeAllowed, reasonSystemAdmin)
		return res, nil
	}

	filter := domain.MembershipFilter{
		UserID:         principal.UserID,
		OrganisationID: organisationID,
		BranchID:       hint.BranchID,
		PropertyID:     hint.PropertyID,
	}
	if !hint.SkipCurrentRole && abilities.RoleKey != nil {
		role, err := s.roles.FindRoleByKey(ctx, rbacdomain.RoleKey(*abilities.RoleKey))
		if err != nil {
			if errors.Is(err, rbacdomain.ErrRoleNotFound) {
				return nil, s.deny(ctx, principal, organisationID, reasonUnknownRole)
			}
			s.metrics.RecordAccessDecision(ctx, guard, outcomeDenied, reasonError)
			return nil, err
		}
		filter.RoleIDs = []snowflake.ID{role.ID}
	}

	orgRows, err := s.repo.OrganisationMemberships(ctx, filter)
	if err != nil {
		s.metrics.RecordAccessDecision(ctx, guard, outcomeDenied, reasonError)
		return nil, err
	}
	branchRows, err := s.repo.BranchMemberships(ctx, filter)
	if err != nil {
		s.metrics.RecordAccessDecision(ctx, guard, outcomeDenied, reasonError)
		return nil, err
	}

	res := &domain.Resolution{
		UserID:        principal.UserID,
		Guard:         principal.Guard,
		Roles:         []rbacdomain.Role{},
		Permissions:   []rbacdomain.PermissionKey{},
		AccessLevels:  []rbacdomain.AccessLevel{},
		UserAccess:    emptyUserAccess(),
		ResourceRoles: map[snowflake.ID]*domain.ResourceRoleBucket{},
	}
	acc := newAccumulator(res, levels, perms)

	for _, row := range orgRows {
		res.UserAccess.Organisation = append(res.UserAccess.Organisation, row.OrganisationID)
		acc.add(row.Role, row.Policy, row.OrganisationID, organisationName(row.Organisation))
	}
	for _, row := range branchRows {
		res.UserAccess.Branch = append(res.UserAccess.Branch, row.BranchID)
		orgID, orgName := branchOrganisation(row.Branch)
		acc.add(row.Role, row.Policy, orgID, orgName)
	}

	role := effectiveRole(res.Roles, levels, s.levelPriority(hint))
	if role == nil {
		return nil, s.deny(ctx, principal, organisationID, reasonNoRole)
	}
	res.Role = role

	s.metrics.RecordRoleResolution(ctx, string(role.RoleAccessLevel), outcomeAllowed)
	s.metrics.RecordAccessDecision(ctx, guard, outcomeAllowed, reasonMembership)
	return res, nil
}

func (s *Service) RoleForOrganisation(ctx context.Context, principal *authdomain.Principal, organisationID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*domain.Membership, error) {
	if err := s.checkResourceCaller(principal); err != nil {
		return nil, err
	}
	row, err := s.repo.FindOrganisationMembership(ctx, principal.UserID, organisationID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, s.deny(ctx, principal, &organisationID, reasonNoRole)
		}
		return nil, err
	}

	membership := &domain.Membership{
		MembershipID:   row.ID,
		OrganisationID: row.OrganisationID,
		IsAdmin:        row.IsAdmin,
		Role:           roleOf(row.Role),
		PolicyID:       row.PolicyID,
		Permissions:    row.Policy.PermissionKeys(),
	}
	if err := s.validateMembership(ctx, principal, membership, roleKeys); err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *Service) RoleForBranch(ctx context.Context, principal *authdomain.Principal, branchID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*domain.Membership, error) {
	if err := s.checkResourceCaller(principal); err != nil {
		return nil, err
	}
	membership, err := s.branchMembership(ctx, principal, branchID)
	if err != nil {
		return nil, err
	}
	if err := s.validateMembership(ctx, principal, membership, roleKeys); err != nil {
		return nil, err
	}
	return membership, nil
}

// RoleForProperty resolves through the property's parent branch.
func (s *Service) RoleForProperty(ctx context.Context, principal *authdomain.Principal, propertyID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*domain.Membership, error) {
	if err := s.checkResourceCaller(principal); err != nil {
		return nil, err
	}
	branchID, err := s.repo.PropertyBranchID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, s.deny(ctx, principal, nil, reasonNoRole)
		}
		return nil, err
	}
	membership, err := s.branchMembership(ctx, principal, branchID)
	if err != nil {
		return nil, err
	}
	membership.PropertyID = &propertyID
	if err := s.validateMembership(ctx, principal, membership, roleKeys); err != nil {
		return nil, err
	}
	return membership, nil
}

func (s *Service) branchMembership(ctx context.Context, principal *authdomain.Principal, branchID snowflake.ID) (*domain.Membership, error) {
	row, err := s.repo.FindBranchMembership(ctx, principal.UserID, branchID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNotFound) {
			return nil, s.deny(ctx, principal, nil, reasonNoRole)
		}
		return nil, err
	}

	codes := make([]string, 0, len(row.TradeCodes))
	for _, code := range row.TradeCodes {
		codes = append(codes, code.Code)
	}
	orgID, _ := branchOrganisation(row.Branch)
	return &domain.Membership{
		MembershipID:   row.ID,
		OrganisationID: orgID,
		BranchID:       &row.BranchID,
		IsAdmin:        row.IsAdmin,
		Role:           roleOf(row.Role),
		PolicyID:       row.PolicyID,
		Permissions:    row.Policy.PermissionKeys(),
		TradeCodes:     codes,
	}, nil
}

func (s *Service) checkResourceCaller(principal *authdomain.Principal) error {
	if principal == nil || principal.UserID == 0 {
		return domain.ErrUnauthenticated
	}
	if principal.IsAdmin() {
		return domain.ErrSystemAdminNotAllowed
	}
	return nil
}

// validateMembership enforces the requested role keys and the trade code rule of trade-scoped
// roles. Without role keys every membership passes.
func (s *Service) validateMembership(ctx context.Context, principal *authdomain.Principal, membership *domain.Membership, roleKeys []rbacdomain.RoleKey) error {
	if len(roleKeys) == 0 {
		return nil
	}
	matched := false
	for _, key := range roleKeys {
		if membership.Role.RoleKey == key {
			matched = true
			break
		}
	}
	if !matched {
		orgID := membership.OrganisationID
		return s.deny(ctx, principal, &orgID, reasonNoRole)
	}
	if s.accessConfig.Get().IsTradeScoped(string(membership.Role.RoleKey)) && len(membership.TradeCodes) == 0 {
		return rbacdomain.TradeCodesRequired(membership.Role.RoleKey)
	}
	return nil
}

func (s *Service) systemAdmin(ctx context.Context, principal *authdomain.Principal) (*domain.Resolution, error) {
	keys, err := s.catalog.SystemPermissions()
	if err != nil {
		return nil, err
	}

	role := rbacdomain.Role{
		RoleKey:         rbacdomain.RoleSystem,
		RoleName:        "System",
		RoleAccessLevel: rbacdomain.AccessLevelSystem,
	}
	if seeded, err := s.roles.FindRoleByKey(ctx, rbacdomain.RoleSystem); err == nil {
		role = *seeded
	} else if !errors.Is(err, rbacdomain.ErrRoleNotFound) {
		return nil, err
	}

	return &domain.Resolution{
		UserID:        principal.UserID,
		Guard:         principal.Guard,
		Role:          &role,
		Roles:         []rbacdomain.Role{role},
		Permissions:   keys,
		AccessLevels:  []rbacdomain.AccessLevel{},
		IsSystemAdmin: true,
		UserAccess:    emptyUserAccess(),
		ResourceRoles: map[snowflake.ID]*domain.ResourceRoleBucket{},
	}, nil
}

func (s *Service) levelPriority(hint domain.ScopeHint) []rbacdomain.AccessLevel {
	if len(hint.LevelPriority) > 0 {
		return hint.LevelPriority
	}
	configured := s.accessConfig.Get().DefaultLevelPriority
	priority := make([]rbacdomain.AccessLevel, 0, len(configured))
	for _, raw := range configured {
		if level, ok := rbacdomain.ParseAccessLevel(raw); ok {
			priority = append(priority, level)
		}
	}
	return priority
}

func (s *Service) deny(ctx context.Context, principal *authdomain.Principal, organisationID *snowflake.ID, reason string) error {
	s.metrics.RecordAccessDecision(ctx, string(principal.Guard), outcomeDenied, reason)
	s.metrics.RecordRoleResolution(ctx, "", outcomeDenied)
	s.log.Debug("access denied",
		zap.String("user_id", principal.UserID.String()),
		zap.String("reason", reason),
		zap.String("request_id", obscontext.RequestIDFromContext(ctx)),
	)

	if s.auditSvc != nil {
		metadata := map[string]any{"reason": reason}
		if principal.Abilities != nil {
			metadata["abilities"] = strings.Join(principal.Abilities, ",")
		}
		err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
			OrgID:      organisationID,
			ActorType:  string(principal.Guard),
			ActorID:    principal.UserID.String(),
			Action:     auditdomain.ActionAccessDenied,
			TargetType: "authorization",
			Metadata:   metadata,
		})
		if err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", auditdomain.ActionAccessDenied), zap.Error(err))
		}
	}
	return domain.ErrForbidden
}

// workingOrganisation folds the token organisation into the scope. An explicit hint wins.
func workingOrganisation(abilities ability.Abilities, hint domain.ScopeHint) *snowflake.ID {
	if hint.OrganisationID != nil {
		id := *hint.OrganisationID
		return &id
	}
	if abilities.OrganisationID == nil || hint.SkipCurrentOrganisation {
		return nil
	}
	if hint.OverrideCurrentOrganisationID != nil {
		id := *hint.OverrideCurrentOrganisationID
		return &id
	}
	id := *abilities.OrganisationID
	return &id
}

// effectiveRole returns the first role, in membership order, of the first priority level that
// has one. Only roles of selected levels are candidates.
func effectiveRole(roles []rbacdomain.Role, levels domain.LevelSelector, priority []rbacdomain.AccessLevel) *rbacdomain.Role {
	for _, level := range priority {
		if !levels.Contains(level) {
			continue
		}
		for i := range roles {
			if roles[i].RoleAccessLevel == level {
				role := roles[i]
				return &role
			}
		}
	}
	return nil
}

type accumulator struct {
	res       *domain.Resolution
	levels    domain.LevelSelector
	perms     domain.PermissionSelector
	seenRoles map[snowflake.ID]struct{}
	seenPerms map[rbacdomain.PermissionKey]struct{}
	seenLevel map[rbacdomain.AccessLevel]struct{}
}

func newAccumulator(res *domain.Resolution, levels domain.LevelSelector, perms domain.PermissionSelector) *accumulator {
	return &accumulator{
		res:       res,
		levels:    levels,
		perms:     perms,
		seenRoles: map[snowflake.ID]struct{}{},
		seenPerms: map[rbacdomain.PermissionKey]struct{}{},
		seenLevel: map[rbacdomain.AccessLevel]struct{}{},
	}
}

func (a *accumulator) add(role *rbacdomain.Role, policy *rbacdomain.Policy, orgID snowflake.ID, orgName string) {
	if role != nil {
		if a.levels.Contains(role.RoleAccessLevel) {
			if _, ok := a.seenLevel[role.RoleAccessLevel]; !ok {
				a.seenLevel[role.RoleAccessLevel] = struct{}{}
				a.res.AccessLevels = append(a.res.AccessLevels, role.RoleAccessLevel)
			}
		}
		if _, ok := a.seenRoles[role.ID]; !ok {
			a.seenRoles[role.ID] = struct{}{}
			a.res.Roles = append(a.res.Roles, *role)
		}
		if orgID != 0 {
			a.res.AddResourceRole(orgID, orgName, *role)
		}
	}

	for _, key := range policy.PermissionKeys() {
		if !a.perms.Contains(key) {
			continue
		}
		if _, ok := a.seenPerms[key]; ok {
			continue
		}
		a.seenPerms[key] = struct{}{}
		a.res.Permissions = append(a.res.Permissions, key)
	}
}

func emptyUserAccess() domain.UserAccess {
	return domain.UserAccess{
		Organisation: []snowflake.ID{},
		Branch:       []snowflake.ID{},
		Property:     []snowflake.ID{},
	}
}

func organisationName(org *organizationdomain.Organisation) string {
	if org == nil {
		return ""
	}
	return org.Name
}

func branchOrganisation(branch *organizationdomain.Branch) (snowflake.ID, string) {
	if branch == nil {
		return 0, ""
	}
	return branch.OrganisationID, organisationName(branch.Organisation)
}

func roleOf(role *rbacdomain.Role) rbacdomain.Role {
	if role == nil {
		return rbacdomain.Role{}
	}
	return *role
}
