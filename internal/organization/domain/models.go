// Package domain contains persistence models for tenants and their memberships.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
)

// Organisation represents a tenant.
type Organisation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_organisations_slug" json:"slug"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organisation) TableName() string { return "organisations" }

// Branch is an operating unit of an organisation.
type Branch struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrganisationID snowflake.ID  `gorm:"not null;index" json:"organisation_id"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	Organisation   *Organisation `gorm:"foreignKey:OrganisationID" json:"-"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Branch) TableName() string { return "branches" }

// Property belongs to exactly one branch.
type Property struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	BranchID  snowflake.ID `gorm:"not null;index" json:"branch_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Branch    *Branch      `gorm:"foreignKey:BranchID" json:"-"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Property) TableName() string { return "properties" }

// TradeCode scopes trade-restricted branch roles (auditors, sub contractors).
type TradeCode struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Code string       `gorm:"type:text;not null;uniqueIndex:ux_trade_codes_code" json:"code"`
	Name string       `gorm:"type:text;not null" json:"name"`
}

// TableName sets the database table name.
func (TradeCode) TableName() string { return "trade_codes" }

// OrganisationUser grants a user a role in an organisation.
type OrganisationUser struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_organisation_users_user_org,priority:1" json:"user_id"`
	OrganisationID snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_organisation_users_user_org,priority:2" json:"organisation_id"`
	RoleID         snowflake.ID       `gorm:"not null;index" json:"role_id"`
	PolicyID       snowflake.ID       `gorm:"not null" json:"policy_id"`
	IsAdmin        bool               `gorm:"not null;default:false" json:"is_admin"`
	Organisation   *Organisation      `gorm:"foreignKey:OrganisationID" json:"organisation,omitempty"`
	Role           *rbacdomain.Role   `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	Policy         *rbacdomain.Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
	CreatedAt      time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganisationUser) TableName() string { return "organisation_users" }

// BranchUser grants a user a role in a branch.
type BranchUser struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_branch_users_user_branch,priority:1" json:"user_id"`
	BranchID   snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_branch_users_user_branch,priority:2" json:"branch_id"`
	RoleID     snowflake.ID       `gorm:"not null;index" json:"role_id"`
	PolicyID   snowflake.ID       `gorm:"not null" json:"policy_id"`
	IsAdmin    bool               `gorm:"not null;default:false" json:"is_admin"`
	Branch     *Branch            `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	Role       *rbacdomain.Role   `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	Policy     *rbacdomain.Policy `gorm:"foreignKey:PolicyID" json:"policy,omitempty"`
	TradeCodes []TradeCode        `gorm:"many2many:branch_user_trade_codes;joinForeignKey:BranchUserID;joinReferences:TradeCodeID" json:"trade_codes,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BranchUser) TableName() string { return "branch_users" }

// OutboxEvent is a membership change waiting to be relayed downstream.
type OutboxEvent struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Topic     string       `gorm:"type:text;not null;index" json:"topic"`
	Payload   []byte       `gorm:"not null" json:"payload"`
	Published bool         `gorm:"not null;default:false;index" json:"published"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OutboxEvent) TableName() string { return "outbox_events" }
