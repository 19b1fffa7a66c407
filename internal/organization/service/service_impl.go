package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/organization/domain"
	"github.com/smallbiznis/quickcart/internal/rbac/catalog"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"github.com/smallbiznis/quickcart/pkg/db"
	"github.com/smallbiznis/quickcart/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Roles        rbacdomain.Repository
	Catalog      *catalog.Catalog
	AccessConfig *config.AccessConfigHolder
	AuditSvc     auditdomain.Service `optional:"true"`
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	roles        rbacdomain.Repository
	catalog      *catalog.Catalog
	accessConfig *config.AccessConfigHolder
	auditSvc     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("organization.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		roles:        p.Roles,
		catalog:      p.Catalog,
		accessConfig: p.AccessConfig,
		auditSvc:     p.AuditSvc,
	}
}

func (s *service) CreateOrganisation(ctx context.Context, req domain.CreateOrganisationRequest) (*domain.Organisation, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	org := domain.Organisation{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateOrganisation(ctx, org); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOrganisationExists
		}
		return nil, err
	}
	return &org, nil
}

func (s *service) CreateBranch(ctx context.Context, req domain.CreateBranchRequest) (*domain.Branch, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if _, err := s.repo.FindOrganisation(ctx, req.OrganisationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOrganisation
		}
		return nil, err
	}

	branch := domain.Branch{
		ID:             s.genID.Generate(),
		OrganisationID: req.OrganisationID,
		Name:           name,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.CreateBranch(ctx, branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *service) CreateProperty(ctx context.Context, req domain.CreatePropertyRequest) (*domain.Property, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if _, err := s.repo.FindBranch(ctx, req.BranchID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidBranch
		}
		return nil, err
	}

	property := domain.Property{
		ID:        s.genID.Generate(),
		BranchID:  req.BranchID,
		Name:      name,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateProperty(ctx, property); err != nil {
		return nil, err
	}
	return &property, nil
}

func (s *service) CreateTradeCode(ctx context.Context, code, name string) (*domain.TradeCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrInvalidTradeCode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = code
	}

	item := domain.TradeCode{
		ID:   s.genID.Generate(),
		Code: code,
		Name: name,
	}
	if err := s.repo.CreateTradeCode(ctx, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrTradeCodeExists
		}
		return nil, err
	}
	return &item, nil
}

// CreateOrganisationUser grants an organisation-level role together with a fresh policy.
func (s *service) CreateOrganisationUser(ctx context.Context, req domain.CreateOrganisationUserRequest) (*domain.OrganisationUser, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	org, err := s.repo.FindOrganisation(ctx, req.OrganisationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOrganisation
		}
		return nil, err
	}
	role, err := s.grantableRole(ctx, req.RoleKey, rbacdomain.AccessLevelOrganisation)
	if err != nil {
		return nil, err
	}
	displayName, err := s.userDisplayName(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	keys, err := s.policyKeys(role.RoleKey, req.Extras)
	if err != nil {
		return nil, err
	}
	if !req.Grantor.Allows(role.RoleAccessLevel, keys) {
		return nil, domain.ErrGrantExceedsCaller
	}

	if _, err := s.repo.FindOrganisationUser(ctx, org.ID, req.UserID); err == nil {
		return nil, domain.ErrMembershipExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	member := &domain.OrganisationUser{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		OrganisationID: org.ID,
		RoleID:         role.ID,
		IsAdmin:        req.IsAdmin,
		CreatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		policy, err := s.createPolicy(ctx, tx, repo, policyName(displayName, org.Name), keys)
		if err != nil {
			return err
		}
		member.PolicyID = policy.ID
		member.Policy = policy

		if err := repo.CreateOrganisationUser(ctx, member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrMembershipExists
			}
			return err
		}
		return s.enqueue(ctx, repo, domain.TopicMembershipGranted, membershipEvent{
			MembershipID:   member.ID.String(),
			Kind:           "organisation",
			UserID:         member.UserID.String(),
			OrganisationID: org.ID.String(),
			RoleKey:        string(role.RoleKey),
			PolicyID:       policy.ID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	member.Organisation = org
	member.Role = role
	s.audit(ctx, auditdomain.Entry{
		OrgID:      &org.ID,
		Action:     auditdomain.ActionMembershipGranted,
		TargetType: "organisation_user",
		TargetID:   member.ID.String(),
		Metadata: map[string]any{
			"user_id":     member.UserID.String(),
			"role_key":    string(role.RoleKey),
			"permissions": permissionStrings(keys),
		},
	})
	s.log.Info("organisation membership granted",
		zap.String("organisation_id", org.ID.String()),
		zap.String("user_id", member.UserID.String()),
		zap.String("role_key", string(role.RoleKey)),
	)
	return member, nil
}

// CreateBranchUser grants a branch-level or property-level role together with a fresh policy.
func (s *service) CreateBranchUser(ctx context.Context, req domain.CreateBranchUserRequest) (*domain.BranchUser, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	branch, err := s.repo.FindBranch(ctx, req.BranchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidBranch
		}
		return nil, err
	}
	role, err := s.grantableRole(ctx, req.RoleKey, rbacdomain.AccessLevelBranch, rbacdomain.AccessLevelProperty)
	if err != nil {
		return nil, err
	}

	codes := normalizeCodes(req.TradeCodes)
	if s.accessConfig.Get().IsTradeScoped(string(role.RoleKey)) && len(codes) == 0 {
		return nil, rbacdomain.TradeCodesRequired(role.RoleKey)
	}
	tradeCodes, err := s.repo.TradeCodesByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	if len(tradeCodes) != len(codes) {
		return nil, domain.ErrInvalidTradeCode
	}

	displayName, err := s.userDisplayName(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	keys, err := s.policyKeys(role.RoleKey, req.Extras)
	if err != nil {
		return nil, err
	}
	if !req.Grantor.Allows(role.RoleAccessLevel, keys) {
		return nil, domain.ErrGrantExceedsCaller
	}

	if _, err := s.repo.FindBranchUser(ctx, branch.ID, req.UserID); err == nil {
		return nil, domain.ErrMembershipExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	member := &domain.BranchUser{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		BranchID:   branch.ID,
		RoleID:     role.ID,
		IsAdmin:    req.IsAdmin,
		TradeCodes: tradeCodes,
		CreatedAt:  s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		policy, err := s.createPolicy(ctx, tx, repo, policyName(displayName, branch.Name), keys)
		if err != nil {
			return err
		}
		member.PolicyID = policy.ID
		member.Policy = policy

		if err := repo.CreateBranchUser(ctx, member); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrMembershipExists
			}
			return err
		}
		return s.enqueue(ctx, repo, domain.TopicMembershipGranted, membershipEvent{
			MembershipID:   member.ID.String(),
			Kind:           "branch",
			UserID:         member.UserID.String(),
			OrganisationID: branch.OrganisationID.String(),
			BranchID:       branch.ID.String(),
			RoleKey:        string(role.RoleKey),
			PolicyID:       policy.ID.String(),
			TradeCodes:     codes,
		})
	})
	if err != nil {
		return nil, err
	}

	member.Branch = branch
	member.Role = role
	s.audit(ctx, auditdomain.Entry{
		OrgID:      &branch.OrganisationID,
		Action:     auditdomain.ActionMembershipGranted,
		TargetType: "branch_user",
		TargetID:   member.ID.String(),
		Metadata: map[string]any{
			"user_id":     member.UserID.String(),
			"branch_id":   branch.ID.String(),
			"role_key":    string(role.RoleKey),
			"trade_codes": codes,
			"permissions": permissionStrings(keys),
		},
	})
	s.log.Info("branch membership granted",
		zap.String("branch_id", branch.ID.String()),
		zap.String("user_id", member.UserID.String()),
		zap.String("role_key", string(role.RoleKey)),
	)
	return member, nil
}

// SyncPolicyPermissions replaces the permission set of a membership policy. A grantor may
// neither add nor strip keys above its own level.
func (s *service) SyncPolicyPermissions(ctx context.Context, policyID snowflake.ID, keys []rbacdomain.PermissionKey, grantor *domain.Grantor) (*rbacdomain.Policy, error) {
	wanted := dedupeKeys(keys)
	for _, key := range wanted {
		if !rbacdomain.IsKnownPermission(key) {
			return nil, domain.ErrInvalidPermission
		}
	}
	if !grantor.Allows(rbacdomain.AccessLevelProperty, wanted) {
		return nil, domain.ErrGrantExceedsCaller
	}

	var policy *rbacdomain.Policy
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindPolicy(ctx, policyID)
		if err != nil {
			return err
		}
		if !grantor.Allows(rbacdomain.AccessLevelProperty, found.PermissionKeys()) {
			return domain.ErrGrantExceedsCaller
		}
		perms, err := s.roles.WithTx(tx).PermissionsByKeys(ctx, wanted)
		if err != nil {
			return err
		}
		if len(perms) != len(wanted) {
			return fmt.Errorf("%w: catalog is missing permissions", rbacdomain.ErrUnknownPermission)
		}

		found.Permissions = perms
		found.UpdatedAt = s.clock.Now()
		if err := repo.ReplacePolicyPermissions(ctx, found); err != nil {
			return err
		}
		policy = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionPolicySynced,
		TargetType: "policy",
		TargetID:   policy.ID.String(),
		Metadata:   map[string]any{"permissions": permissionStrings(wanted)},
	})
	return policy, nil
}

// RemoveOrganisationUser deletes the membership and the policy it owned.
func (s *service) RemoveOrganisationUser(ctx context.Context, orgID, userID snowflake.ID, grantor *domain.Grantor) error {
	member, err := s.repo.FindOrganisationUser(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if !grantor.Allows(roleLevelOf(member.Role), nil) {
		return domain.ErrGrantExceedsCaller
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteOrganisationUser(ctx, member.ID); err != nil {
			return err
		}
		if err := repo.DeletePolicy(ctx, member.PolicyID); err != nil {
			return err
		}
		return s.enqueue(ctx, repo, domain.TopicMembershipRevoked, membershipEvent{
			MembershipID:   member.ID.String(),
			Kind:           "organisation",
			UserID:         member.UserID.String(),
			OrganisationID: orgID.String(),
			RoleKey:        roleKeyOf(member.Role),
			PolicyID:       member.PolicyID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.audit(ctx, auditdomain.Entry{
		OrgID:      &orgID,
		Action:     auditdomain.ActionMembershipRevoked,
		TargetType: "organisation_user",
		TargetID:   member.ID.String(),
		Metadata:   map[string]any{"user_id": userID.String(), "role_key": roleKeyOf(member.Role)},
	})
	return nil
}

// RemoveBranchUser deletes the membership, its trade code links and the policy it owned.
func (s *service) RemoveBranchUser(ctx context.Context, branchID, userID snowflake.ID, grantor *domain.Grantor) error {
	branch, err := s.repo.FindBranch(ctx, branchID)
	if err != nil {
		return err
	}
	member, err := s.repo.FindBranchUser(ctx, branchID, userID)
	if err != nil {
		return err
	}
	if !grantor.Allows(roleLevelOf(member.Role), nil) {
		return domain.ErrGrantExceedsCaller
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteBranchUser(ctx, member.ID); err != nil {
			return err
		}
		if err := repo.DeletePolicy(ctx, member.PolicyID); err != nil {
			return err
		}
		return s.enqueue(ctx, repo, domain.TopicMembershipRevoked, membershipEvent{
			MembershipID:   member.ID.String(),
			Kind:           "branch",
			UserID:         member.UserID.String(),
			OrganisationID: branch.OrganisationID.String(),
			BranchID:       branchID.String(),
			RoleKey:        roleKeyOf(member.Role),
			PolicyID:       member.PolicyID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.audit(ctx, auditdomain.Entry{
		OrgID:      &branch.OrganisationID,
		Action:     auditdomain.ActionMembershipRevoked,
		TargetType: "branch_user",
		TargetID:   member.ID.String(),
		Metadata:   map[string]any{"user_id": userID.String(), "branch_id": branchID.String(), "role_key": roleKeyOf(member.Role)},
	})
	return nil
}

func (s *service) ListOrganisationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganisationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganisationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganisationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganisationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			RoleKey:   item.RoleKey,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) (*domain.MemberListResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganisation
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return nil, pagination.ErrInvalidPageToken
		}
		afterID = id
	}

	limit := page.Limit()
	rows, err := s.repo.ListMembers(ctx, orgID, afterID, limit+1)
	if err != nil {
		return nil, err
	}
	items, pageInfo, err := pagination.Trim(rows, limit, func(item domain.MemberListItem) string {
		return item.MembershipID.String()
	})
	if err != nil {
		return nil, err
	}

	members := make([]domain.MemberResponse, 0, len(items))
	for _, item := range items {
		member := domain.MemberResponse{
			MembershipID: item.MembershipID.String(),
			UserID:       item.UserID.String(),
			DisplayName:  item.DisplayName,
			Email:        item.Email,
			RoleKey:      item.RoleKey,
			CreatedAt:    item.CreatedAt,
		}
		if item.BranchID != nil {
			member.BranchID = item.BranchID.String()
		}
		members = append(members, member)
	}

	return &domain.MemberListResponse{Members: members, PageInfo: pageInfo}, nil
}

// grantableRole loads a catalog role and checks it fits the membership kind. The system role is
// never grantable.
func (s *service) grantableRole(ctx context.Context, key rbacdomain.RoleKey, levels ...rbacdomain.AccessLevel) (*rbacdomain.Role, error) {
	key = rbacdomain.RoleKey(strings.ToLower(strings.TrimSpace(string(key))))
	if key == "" || key == rbacdomain.RoleSystem {
		return nil, domain.ErrInvalidRole
	}
	role, err := s.roles.FindRoleByKey(ctx, key)
	if err != nil {
		if errors.Is(err, rbacdomain.ErrRoleNotFound) {
			return nil, domain.ErrInvalidRole
		}
		return nil, err
	}
	for _, level := range levels {
		if role.RoleAccessLevel == level {
			return role, nil
		}
	}
	return nil, domain.ErrInvalidRole
}

func (s *service) userDisplayName(ctx context.Context, userID snowflake.ID) (string, error) {
	name, err := s.repo.UserDisplayName(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrInvalidUser
		}
		return "", err
	}
	return name, nil
}

// policyKeys is the role baseline followed by requested toggleable extras.
func (s *service) policyKeys(roleKey rbacdomain.RoleKey, extras []rbacdomain.PermissionKey) ([]rbacdomain.PermissionKey, error) {
	baseline, err := s.catalog.BaselinePermissions(roleKey)
	if err != nil {
		return nil, err
	}
	for _, extra := range extras {
		if !isToggleable(extra) {
			return nil, domain.ErrInvalidPermission
		}
	}
	return dedupeKeys(append(baseline, extras...)), nil
}

func (s *service) createPolicy(ctx context.Context, tx *gorm.DB, repo domain.Repository, name string, keys []rbacdomain.PermissionKey) (*rbacdomain.Policy, error) {
	perms, err := s.roles.WithTx(tx).PermissionsByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(keys) {
		return nil, fmt.Errorf("%w: catalog is missing permissions", rbacdomain.ErrUnknownPermission)
	}

	now := s.clock.Now()
	policy := &rbacdomain.Policy{
		ID:          s.genID.Generate(),
		PolicyName:  name,
		Permissions: perms,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreatePolicy(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

type membershipEvent struct {
	MembershipID   string   `json:"membership_id"`
	Kind           string   `json:"kind"`
	UserID         string   `json:"user_id"`
	OrganisationID string   `json:"organisation_id"`
	BranchID       string   `json:"branch_id,omitempty"`
	RoleKey        string   `json:"role_key"`
	PolicyID       string   `json:"policy_id"`
	TradeCodes     []string `json:"trade_codes,omitempty"`
}

func (s *service) enqueue(ctx context.Context, repo domain.Repository, topic string, payload membershipEvent) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return repo.InsertOutboxEvent(ctx, domain.OutboxEvent{
		ID:        s.genID.Generate(),
		Topic:     topic,
		Payload:   data,
		CreatedAt: s.clock.Now(),
	})
}

func (s *service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func policyName(displayName, resourceName string) string {
	return fmt.Sprintf("%s's policy for %s", strings.TrimSpace(displayName), strings.TrimSpace(resourceName))
}

func isToggleable(key rbacdomain.PermissionKey) bool {
	for _, toggleable := range rbacdomain.ToggleablePermissions {
		if toggleable == key {
			return true
		}
	}
	return false
}

func dedupeKeys(keys []rbacdomain.PermissionKey) []rbacdomain.PermissionKey {
	seen := make(map[rbacdomain.PermissionKey]struct{}, len(keys))
	out := make([]rbacdomain.PermissionKey, 0, len(keys))
	for _, key := range keys {
		key = rbacdomain.PermissionKey(strings.ToLower(strings.TrimSpace(string(key))))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

func permissionStrings(keys []rbacdomain.PermissionKey) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, string(key))
	}
	return out
}

func roleKeyOf(role *rbacdomain.Role) string {
	if role == nil {
		return ""
	}
	return string(role.RoleKey)
}

// roleLevelOf treats a membership without a loaded role as system level, so grantors cannot touch it.
func roleLevelOf(role *rbacdomain.Role) rbacdomain.AccessLevel {
	if role == nil {
		return rbacdomain.AccessLevelSystem
	}
	return role.RoleAccessLevel
}
