package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quickcart/internal/authorization/domain"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) OrganisationMemberships(ctx context.Context, filter domain.MembershipFilter) ([]organizationdomain.OrganisationUser, error) {
	stmt := r.db.WithContext(ctx).
		Preload("Organisation").
		Preload("Role").
		Preload("Policy.Permissions", orderPermissions).
		Where("user_id = ?", filter.UserID)

	if filter.RoleIDs != nil {
		stmt = stmt.Where("role_id IN ?", filter.RoleIDs)
	}
	if filter.OrganisationID != nil {
		stmt = stmt.Where("organisation_id = ?", *filter.OrganisationID)
	}

	var rows []organizationdomain.OrganisationUser
	if err := stmt.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) BranchMemberships(ctx context.Context, filter domain.MembershipFilter) ([]organizationdomain.BranchUser, error) {
	stmt := r.db.WithContext(ctx).
		Preload("Branch.Organisation").
		Preload("Role").
		Preload("Policy.Permissions", orderPermissions).
		Preload("TradeCodes").
		Where("user_id = ?", filter.UserID)

	if filter.RoleIDs != nil {
		stmt = stmt.Where("role_id IN ?", filter.RoleIDs)
	}
	if filter.BranchID != nil {
		stmt = stmt.Where("branch_id = ?", *filter.BranchID)
	}
	if filter.PropertyID != nil {
		stmt = stmt.Where("branch_id IN (SELECT branch_id FROM properties WHERE id = ?)", *filter.PropertyID)
	}
	if filter.OrganisationID != nil {
		stmt = stmt.Where("branch_id IN (SELECT id FROM branches WHERE organisation_id = ?)", *filter.OrganisationID)
	}

	var rows []organizationdomain.BranchUser
	if err := stmt.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindOrganisationMembership(ctx context.Context, userID, organisationID snowflake.ID) (*organizationdomain.OrganisationUser, error) {
	var row organizationdomain.OrganisationUser
	err := r.db.WithContext(ctx).
		Preload("Role").
		Preload("Policy.Permissions", orderPermissions).
		Where("user_id = ? AND organisation_id = ?", userID, organisationID).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *repository) FindBranchMembership(ctx context.Context, userID, branchID snowflake.ID) (*organizationdomain.BranchUser, error) {
	var row organizationdomain.BranchUser
	err := r.db.WithContext(ctx).
		Preload("Branch").
		Preload("Role").
		Preload("Policy.Permissions", orderPermissions).
		Preload("TradeCodes").
		Where("user_id = ? AND branch_id = ?", userID, branchID).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func (r *repository) PropertyBranchID(ctx context.Context, propertyID snowflake.ID) (snowflake.ID, error) {
	var property organizationdomain.Property
	err := r.db.WithContext(ctx).
		Select("id", "branch_id").
		Where("id = ?", propertyID).
		First(&property).Error
	if err != nil {
		return 0, notFound(err)
	}
	return property.BranchID, nil
}

// HoldsRoleInOrganisation checks organisation grants first, then grants on the organisation's
// branches.
func (r *repository) HoldsRoleInOrganisation(ctx context.Context, userID, organisationID, roleID snowflake.ID) (bool, error) {
	var direct int64
	err := r.db.WithContext(ctx).
		Model(&organizationdomain.OrganisationUser{}).
		Where("user_id = ? AND organisation_id = ? AND role_id = ?", userID, organisationID, roleID).
		Count(&direct).Error
	if err != nil {
		return false, err
	}
	if direct > 0 {
		return true, nil
	}

	var viaBranch int64
	err = r.db.WithContext(ctx).
		Model(&organizationdomain.BranchUser{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Where("branch_id IN (SELECT id FROM branches WHERE organisation_id = ?)", organisationID).
		Count(&viaBranch).Error
	if err != nil {
		return false, err
	}
	return viaBranch > 0, nil
}

func orderPermissions(db *gorm.DB) *gorm.DB {
	return db.Order("permissions.id ASC")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return organizationdomain.ErrNotFound
	}
	return err
}
