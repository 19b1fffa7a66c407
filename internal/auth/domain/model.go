// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Guard names the credential family a token was issued for.
type Guard string

const (
	GuardUser  Guard = "user"
	GuardAdmin Guard = "admin"
)

// User is a marketplace account that can hold organisation and branch memberships.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	DisplayName  string       `gorm:"type:text;not null" json:"display_name"`
	PasswordHash *string      `gorm:"type:text" json:"-"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Admin is a platform operator. Admins never hold memberships.
type Admin struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_admins_email" json:"email"`
	DisplayName  string       `gorm:"type:text;not null" json:"display_name"`
	PasswordHash string       `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Admin) TableName() string { return "admins" }

// AccessToken is the server-side record of an issued bearer token.
// Abilities always holds three positional slots: role key, organisation id, role id.
type AccessToken struct {
	ID          snowflake.ID                `gorm:"primaryKey"`
	TokenableID snowflake.ID                `gorm:"not null;index:ix_access_tokens_tokenable,priority:2"`
	Guard       Guard                       `gorm:"type:text;not null;index:ix_access_tokens_tokenable,priority:1"`
	Abilities   datatypes.JSONSlice[string] `gorm:"not null"`
	ExpiresAt   time.Time                   `gorm:"not null;index"`
	LastUsedAt  *time.Time                  `gorm:"column:last_used_at"`
	CreatedAt   time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccessToken) TableName() string { return "access_tokens" }

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    snowflake.ID
	Guard     Guard
	TokenID   snowflake.ID
	Abilities []string
}

// IsAdmin reports whether the principal authenticated through the admin guard.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Guard == GuardAdmin
}
