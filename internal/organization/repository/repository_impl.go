package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganisation(ctx context.Context, org domain.Organisation) error {
	return r.db.WithContext(ctx).Create(&org).Error
}

func (r *repository) FindOrganisation(ctx context.Context, id snowflake.ID) (*domain.Organisation, error) {
	var org domain.Organisation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (r *repository) CreateBranch(ctx context.Context, branch domain.Branch) error {
	return r.db.WithContext(ctx).Omit("Organisation").Create(&branch).Error
}

func (r *repository) FindBranch(ctx context.Context, id snowflake.ID) (*domain.Branch, error) {
	var branch domain.Branch
	if err := r.db.WithContext(ctx).Preload("Organisation").Where("id = ?", id).First(&branch).Error; err != nil {
		return nil, notFound(err)
	}
	return &branch, nil
}

func (r *repository) CreateProperty(ctx context.Context, property domain.Property) error {
	return r.db.WithContext(ctx).Omit("Branch").Create(&property).Error
}

func (r *repository) FindProperty(ctx context.Context, id snowflake.ID) (*domain.Property, error) {
	var property domain.Property
	if err := r.db.WithContext(ctx).Preload("Branch").Where("id = ?", id).First(&property).Error; err != nil {
		return nil, notFound(err)
	}
	return &property, nil
}

func (r *repository) CreateTradeCode(ctx context.Context, code domain.TradeCode) error {
	return r.db.WithContext(ctx).Create(&code).Error
}

func (r *repository) TradeCodesByCodes(ctx context.Context, codes []string) ([]domain.TradeCode, error) {
	if len(codes) == 0 {
		return []domain.TradeCode{}, nil
	}
	var items []domain.TradeCode
	if err := r.db.WithContext(ctx).Where("code IN ?", codes).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UserDisplayName(ctx context.Context, userID snowflake.ID) (string, error) {
	var row struct {
		DisplayName string
	}
	err := r.db.WithContext(ctx).
		Table("users").
		Select("display_name").
		Where("id = ?", userID).
		Take(&row).Error
	if err != nil {
		return "", notFound(err)
	}
	return row.DisplayName, nil
}

func (r *repository) CreateOrganisationUser(ctx context.Context, member *domain.OrganisationUser) error {
	return r.db.WithContext(ctx).Omit("Organisation", "Role", "Policy").Create(member).Error
}

func (r *repository) FindOrganisationUser(ctx context.Context, orgID, userID snowflake.ID) (*domain.OrganisationUser, error) {
	var member domain.OrganisationUser
	err := r.db.WithContext(ctx).
		Preload("Role").
		Where("organisation_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

func (r *repository) DeleteOrganisationUser(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.OrganisationUser{}).Error
}

func (r *repository) CreateBranchUser(ctx context.Context, member *domain.BranchUser) error {
	return r.db.WithContext(ctx).Omit("Branch", "Role", "Policy", "TradeCodes.*").Create(member).Error
}

func (r *repository) FindBranchUser(ctx context.Context, branchID, userID snowflake.ID) (*domain.BranchUser, error) {
	var member domain.BranchUser
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("TradeCodes").
		Where("branch_id = ? AND user_id = ?", branchID, userID).
		First(&member).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

func (r *repository) DeleteBranchUser(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Select("TradeCodes").Delete(&domain.BranchUser{ID: id}).Error
}

// ListOrganisationsByUser returns one row per (organisation, role) the user holds, directly or
// through a branch.
func (r *repository) ListOrganisationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganisationListItem, error) {
	var direct []domain.OrganisationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, ro.role_key, o.created_at
		 FROM organisations o
		 JOIN organisation_users ou ON ou.organisation_id = o.id
		 JOIN roles ro ON ro.id = ou.role_id
		 WHERE ou.user_id = ?`,
		userID,
	).Scan(&direct).Error
	if err != nil {
		return nil, err
	}

	var viaBranch []domain.OrganisationListItem
	err = r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, ro.role_key, o.created_at
		 FROM organisations o
		 JOIN branches b ON b.organisation_id = o.id
		 JOIN branch_users bu ON bu.branch_id = b.id
		 JOIN roles ro ON ro.id = bu.role_id
		 WHERE bu.user_id = ?`,
		userID,
	).Scan(&viaBranch).Error
	if err != nil {
		return nil, err
	}

	type key struct {
		id      snowflake.ID
		roleKey string
	}
	seen := make(map[key]struct{}, len(direct)+len(viaBranch))
	items := make([]domain.OrganisationListItem, 0, len(direct)+len(viaBranch))
	for _, item := range append(direct, viaBranch...) {
		k := key{id: item.ID, roleKey: item.RoleKey}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if items[i].ID != items[j].ID {
			return items[i].ID < items[j].ID
		}
		return items[i].RoleKey < items[j].RoleKey
	})
	return items, nil
}

// ListMembers merges organisation-level and branch-level grants ordered by membership id.
func (r *repository) ListMembers(ctx context.Context, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]domain.MemberListItem, error) {
	type row struct {
		MembershipID snowflake.ID
		UserID       snowflake.ID
		DisplayName  string
		Email        string
		RoleKey      string
		BranchID     *snowflake.ID
		CreatedAt    time.Time
	}

	var orgRows []row
	err := r.db.WithContext(ctx).Raw(
		`SELECT ou.id AS membership_id, ou.user_id, u.display_name, u.email, ro.role_key, ou.created_at
		 FROM organisation_users ou
		 JOIN users u ON u.id = ou.user_id
		 JOIN roles ro ON ro.id = ou.role_id
		 WHERE ou.organisation_id = ? AND ou.id > ?
		 ORDER BY ou.id ASC
		 LIMIT ?`,
		orgID, afterID, limit,
	).Scan(&orgRows).Error
	if err != nil {
		return nil, err
	}

	var branchRows []row
	err = r.db.WithContext(ctx).Raw(
		`SELECT bu.id AS membership_id, bu.user_id, u.display_name, u.email, ro.role_key, bu.branch_id, bu.created_at
		 FROM branch_users bu
		 JOIN branches b ON b.id = bu.branch_id
		 JOIN users u ON u.id = bu.user_id
		 JOIN roles ro ON ro.id = bu.role_id
		 WHERE b.organisation_id = ? AND bu.id > ?
		 ORDER BY bu.id ASC
		 LIMIT ?`,
		orgID, afterID, limit,
	).Scan(&branchRows).Error
	if err != nil {
		return nil, err
	}

	rows := append(orgRows, branchRows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].MembershipID < rows[j].MembershipID })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	items := make([]domain.MemberListItem, 0, len(rows))
	for _, rw := range rows {
		items = append(items, domain.MemberListItem(rw))
	}
	return items, nil
}

func (r *repository) CreatePolicy(ctx context.Context, policy *rbacdomain.Policy) error {
	return r.db.WithContext(ctx).Omit("Permissions.*").Create(policy).Error
}

func (r *repository) FindPolicy(ctx context.Context, id snowflake.ID) (*rbacdomain.Policy, error) {
	var policy rbacdomain.Policy
	err := r.db.WithContext(ctx).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB { return db.Order("permissions.id ASC") }).
		Where("id = ?", id).
		First(&policy).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &policy, nil
}

// PolicyOrganisationID returns the organisation of the membership that owns policyID.
func (r *repository) PolicyOrganisationID(ctx context.Context, policyID snowflake.ID) (snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := r.db.WithContext(ctx).
		Model(&domain.OrganisationUser{}).
		Where("policy_id = ?", policyID).
		Limit(1).
		Pluck("organisation_id", &orgIDs).Error
	if err != nil {
		return 0, err
	}
	if len(orgIDs) > 0 {
		return orgIDs[0], nil
	}

	err = r.db.WithContext(ctx).
		Table("branch_users").
		Joins("JOIN branches ON branches.id = branch_users.branch_id").
		Where("branch_users.policy_id = ?", policyID).
		Limit(1).
		Pluck("branches.organisation_id", &orgIDs).Error
	if err != nil {
		return 0, err
	}
	if len(orgIDs) == 0 {
		return 0, domain.ErrNotFound
	}
	return orgIDs[0], nil
}

func (r *repository) ReplacePolicyPermissions(ctx context.Context, policy *rbacdomain.Policy) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(policy).Association("Permissions").Replace(policy.Permissions); err != nil {
		return err
	}
	return db.Model(&rbacdomain.Policy{}).
		Where("id = ?", policy.ID).
		Update("updated_at", policy.UpdatedAt).Error
}

func (r *repository) DeletePolicy(ctx context.Context, id snowflake.ID) error {
	return r.db.WithContext(ctx).Select("Permissions").Delete(&rbacdomain.Policy{ID: id}).Error
}

func (r *repository) InsertOutboxEvent(ctx context.Context, event domain.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

// PendingOutboxEvents returns unpublished events, oldest first.
func (r *repository) PendingOutboxEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	var events []domain.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) MarkOutboxPublished(ctx context.Context, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.OutboxEvent{}).
		Where("id IN ?", ids).
		Update("published", true).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
