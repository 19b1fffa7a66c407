package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/auth/password"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"gorm.io/gorm"
)

const (
	demoOrgName          = "Quickcart Demo"
	demoBranchName       = "Central Kitchen"
	defaultAdminEmail    = "admin@quickcart.local"
	defaultAdminPassword = "quickcart-admin"
	defaultAdminDisplay  = "Quickcart Admin"
)

// EnsureCatalog seeds every catalog role and permission key. Existing rows are left untouched.
func EnsureCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range rbacdomain.AllPermissionKeys {
			if err := ensurePermissionTx(ctx, tx, node, key); err != nil {
				return err
			}
		}
		for _, spec := range rbacdomain.Catalog {
			if err := ensureRoleTx(ctx, tx, node, spec); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDemoData seeds a demo organisation with one branch and the default platform admin.
func EnsureDemoData(ctx context.Context, db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureOrganisationTx(ctx, tx, node, demoOrgName)
		if err != nil {
			return err
		}
		if err := ensureBranchTx(ctx, tx, node, org.ID, demoBranchName); err != nil {
			return err
		}
		return ensureAdminTx(ctx, tx, node)
	})
}

func ensurePermissionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, key rbacdomain.PermissionKey) error {
	var perm rbacdomain.Permission
	err := tx.WithContext(ctx).Where("permission_key = ?", key).First(&perm).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	perm = rbacdomain.Permission{
		ID:            node.Generate(),
		PermissionKey: key,
	}
	return tx.WithContext(ctx).Create(&perm).Error
}

func ensureRoleTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, spec rbacdomain.RoleSpec) error {
	var role rbacdomain.Role
	err := tx.WithContext(ctx).Where("role_key = ?", spec.Key).First(&role).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	role = rbacdomain.Role{
		ID:              node.Generate(),
		RoleKey:         spec.Key,
		RoleName:        spec.Name,
		RoleAccessLevel: spec.AccessLevel,
		CreatedAt:       time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&role).Error
}

func ensureOrganisationTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string) (organizationdomain.Organisation, error) {
	orgSlug := slug.Make(name)

	var org organizationdomain.Organisation
	err := tx.WithContext(ctx).Where("slug = ?", orgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}
	now := time.Now().UTC()
	org = organizationdomain.Organisation{
		ID:        node.Generate(),
		Name:      name,
		Slug:      orgSlug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureBranchTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID, name string) error {
	var branch organizationdomain.Branch
	err := tx.WithContext(ctx).
		Where("organisation_id = ? AND name = ?", orgID, name).
		First(&branch).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	branch = organizationdomain.Branch{
		ID:             node.Generate(),
		OrganisationID: orgID,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	return tx.WithContext(ctx).Omit("Organisation").Create(&branch).Error
}

func ensureAdminTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	email := strings.ToLower(defaultAdminEmail)

	var admin authdomain.Admin
	err := tx.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hashed, err := password.Hash(defaultAdminPassword)
	if err != nil {
		return err
	}
	admin = authdomain.Admin{
		ID:           node.Generate(),
		Email:        email,
		DisplayName:  defaultAdminDisplay,
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&admin).Error
}
