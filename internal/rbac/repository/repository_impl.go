package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/rbac/domain"
	"gorm.io/gorm"
)

const (
	defaultRoleCacheSize = 256
	defaultRoleCacheTTL  = 5 * time.Minute
)

type repository struct {
	db    *gorm.DB
	byID  *expirable.LRU[snowflake.ID, domain.Role]
	byKey *expirable.LRU[domain.RoleKey, domain.Role]
}

// NewRepository returns a role repository. Roles are seeded and read-only, so lookups by id and
// key are cached in memory.
func NewRepository(db *gorm.DB, cfg config.Config) domain.Repository {
	size := cfg.RoleCacheSize
	if size <= 0 {
		size = defaultRoleCacheSize
	}
	ttl := cfg.RoleCacheTTL
	if ttl <= 0 {
		ttl = defaultRoleCacheTTL
	}
	return &repository{
		db:    db,
		byID:  expirable.NewLRU[snowflake.ID, domain.Role](size, nil, ttl),
		byKey: expirable.NewLRU[domain.RoleKey, domain.Role](size, nil, ttl),
	}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx, byID: r.byID, byKey: r.byKey}
}

func (r *repository) FindRoleByID(ctx context.Context, id snowflake.ID) (*domain.Role, error) {
	if role, ok := r.byID.Get(id); ok {
		return &role, nil
	}

	var role domain.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	r.remember(role)
	return &role, nil
}

func (r *repository) FindRoleByKey(ctx context.Context, key domain.RoleKey) (*domain.Role, error) {
	if role, ok := r.byKey.Get(key); ok {
		return &role, nil
	}

	var role domain.Role
	err := r.db.WithContext(ctx).Where("role_key = ?", key).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	r.remember(role)
	return &role, nil
}

func (r *repository) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) PermissionsByKeys(ctx context.Context, keys []domain.PermissionKey) ([]domain.Permission, error) {
	if len(keys) == 0 {
		return []domain.Permission{}, nil
	}
	var perms []domain.Permission
	if err := r.db.WithContext(ctx).
		Where("permission_key IN ?", keys).
		Order("id ASC").
		Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *repository) remember(role domain.Role) {
	r.byID.Add(role.ID, role)
	r.byKey.Add(role.RoleKey, role)
}
