package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

const (
	ActionAccessDenied      = "access.denied"
	ActionMembershipGranted = "membership.granted"
	ActionMembershipRevoked = "membership.revoked"
	ActionPolicySynced      = "policy.permissions_synced"
	ActionTokenIssued       = "auth.token_issued"
	ActionTokenRevoked      = "auth.token_revoked"
	ActionLoginFailed       = "auth.login_failed"
	ActionRoleSelected      = "auth.role_selected"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      *snowflake.ID     `gorm:"index" json:"org_id,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	IPAddress  *string           `gorm:"type:text" json:"ip_address,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID snowflake.ID
}

type ListFilter struct {
	OrgID  snowflake.ID
	Action string
	Cursor *AuditCursor
	Limit  int
}
