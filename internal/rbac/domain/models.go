// Package domain contains the role catalog models shared by membership and authorization code.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is a seeded catalog entry. Roles are read-only at request time.
type Role struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	RoleKey         RoleKey      `gorm:"column:role_key;type:text;not null;uniqueIndex:ux_roles_role_key" json:"role_key"`
	RoleName        string       `gorm:"column:role_name;type:text;not null" json:"role_name"`
	RoleAccessLevel AccessLevel  `gorm:"column:role_access_level;type:text;not null" json:"role_access_level"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// Permission is a seeded permission key.
type Permission struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	PermissionKey PermissionKey `gorm:"column:permission_key;type:text;not null;uniqueIndex:ux_permissions_permission_key" json:"permission_key"`
}

// TableName sets the database table name.
func (Permission) TableName() string { return "permissions" }

// Policy is the operative permission grant of exactly one membership row.
type Policy struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	PolicyName  string       `gorm:"column:policy_name;type:text;not null" json:"policy_name"`
	Permissions []Permission `gorm:"many2many:policy_permissions;joinForeignKey:PolicyID;joinReferences:PermissionID" json:"permissions"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Policy) TableName() string { return "policies" }

// PermissionKeys returns the keys granted by the policy in storage order.
func (p *Policy) PermissionKeys() []PermissionKey {
	if p == nil {
		return nil
	}
	keys := make([]PermissionKey, 0, len(p.Permissions))
	for _, perm := range p.Permissions {
		keys = append(keys, perm.PermissionKey)
	}
	return keys
}
