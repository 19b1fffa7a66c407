package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRoleByID(ctx context.Context, id snowflake.ID) (*Role, error)
	FindRoleByKey(ctx context.Context, key RoleKey) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	PermissionsByKeys(ctx context.Context, keys []PermissionKey) ([]Permission, error)
}
