// Package domain contains the types of the permission resolver.
package domain

import (
	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
)

// ScopeHint narrows a resolution. Nil ids mean "no filter".
type ScopeHint struct {
	OrganisationID *snowflake.ID
	BranchID       *snowflake.ID
	PropertyID     *snowflake.ID

	// LevelPriority orders effective-role selection. Empty uses the configured default.
	LevelPriority []rbacdomain.AccessLevel

	// SkipCurrentRole ignores the role the token was minted with.
	SkipCurrentRole bool
	// SkipCurrentOrganisation ignores the organisation the token was minted with.
	SkipCurrentOrganisation bool
	// OverrideCurrentOrganisationID replaces the token organisation when it is folded in.
	OverrideCurrentOrganisationID *snowflake.ID
}

// UserAccess lists the resource ids a caller reaches through its memberships, for use in
// `WHERE id IN (...)` filters. Ids may repeat.
type UserAccess struct {
	Organisation []snowflake.ID `json:"organisation"`
	Branch       []snowflake.ID `json:"branch"`
	Property     []snowflake.ID `json:"property"`
}

// ResourceRoleBucket groups the distinct roles a caller holds inside one organisation.
type ResourceRoleBucket struct {
	ID    snowflake.ID      `json:"id"`
	Name  string            `json:"name"`
	Roles []rbacdomain.Role `json:"roles"`
}

func (b *ResourceRoleBucket) add(role rbacdomain.Role) {
	for _, existing := range b.Roles {
		if existing.ID == role.ID {
			return
		}
	}
	b.Roles = append(b.Roles, role)
}

// Resolution is the authorization decision for one caller and scope.
type Resolution struct {
	UserID        snowflake.ID                         `json:"user_id"`
	Guard         authdomain.Guard                     `json:"guard"`
	Role          *rbacdomain.Role                     `json:"role"`
	Roles         []rbacdomain.Role                    `json:"roles"`
	Permissions   []rbacdomain.PermissionKey           `json:"permissions"`
	AccessLevels  []rbacdomain.AccessLevel             `json:"access_levels"`
	IsSystemAdmin bool                                 `json:"is_system_admin"`
	UserAccess    UserAccess                           `json:"user_access"`
	ResourceRoles map[snowflake.ID]*ResourceRoleBucket `json:"resource_roles"`
}

// HasPermission reports whether key is part of the resolved permission set.
func (r *Resolution) HasPermission(key rbacdomain.PermissionKey) bool {
	if r == nil {
		return false
	}
	for _, granted := range r.Permissions {
		if granted == key {
			return true
		}
	}
	return false
}

// Bucket returns the role bucket of orgID, creating it on first use.
func (r *Resolution) Bucket(orgID snowflake.ID, name string) *ResourceRoleBucket {
	if r.ResourceRoles == nil {
		r.ResourceRoles = make(map[snowflake.ID]*ResourceRoleBucket)
	}
	bucket, ok := r.ResourceRoles[orgID]
	if !ok {
		bucket = &ResourceRoleBucket{ID: orgID, Name: name, Roles: []rbacdomain.Role{}}
		r.ResourceRoles[orgID] = bucket
	}
	return bucket
}

// AddResourceRole merges role into the bucket of orgID, once per role id.
func (r *Resolution) AddResourceRole(orgID snowflake.ID, name string, role rbacdomain.Role) {
	r.Bucket(orgID, name).add(role)
}

// Membership is one caller grant scoped to a single resource.
type Membership struct {
	MembershipID   snowflake.ID               `json:"membership_id"`
	OrganisationID snowflake.ID               `json:"organisation_id"`
	BranchID       *snowflake.ID              `json:"branch_id,omitempty"`
	PropertyID     *snowflake.ID              `json:"property_id,omitempty"`
	IsAdmin        bool                       `json:"is_admin"`
	Role           rbacdomain.Role            `json:"role"`
	PolicyID       snowflake.ID               `json:"policy_id"`
	Permissions    []rbacdomain.PermissionKey `json:"permissions"`
	TradeCodes     []string                   `json:"trade_codes,omitempty"`
}

// HasPermission reports whether the membership policy grants key.
func (m *Membership) HasPermission(key rbacdomain.PermissionKey) bool {
	if m == nil {
		return false
	}
	for _, granted := range m.Permissions {
		if granted == key {
			return true
		}
	}
	return false
}
