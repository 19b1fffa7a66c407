package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"github.com/smallbiznis/quickcart/pkg/db/pagination"
)

type Service interface {
	CreateOrganisation(ctx context.Context, req CreateOrganisationRequest) (*Organisation, error)
	CreateBranch(ctx context.Context, req CreateBranchRequest) (*Branch, error)
	CreateProperty(ctx context.Context, req CreatePropertyRequest) (*Property, error)
	CreateTradeCode(ctx context.Context, code, name string) (*TradeCode, error)

	CreateOrganisationUser(ctx context.Context, req CreateOrganisationUserRequest) (*OrganisationUser, error)
	CreateBranchUser(ctx context.Context, req CreateBranchUserRequest) (*BranchUser, error)
	SyncPolicyPermissions(ctx context.Context, policyID snowflake.ID, keys []rbacdomain.PermissionKey, grantor *Grantor) (*rbacdomain.Policy, error)
	RemoveOrganisationUser(ctx context.Context, orgID, userID snowflake.ID, grantor *Grantor) error
	RemoveBranchUser(ctx context.Context, branchID, userID snowflake.ID, grantor *Grantor) error

	ListOrganisationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganisationListResponseItem, error)
	ListMembers(ctx context.Context, orgID snowflake.ID, page pagination.Pagination) (*MemberListResponse, error)
}

// Grantor is the member a grant is made on behalf of. A nil Grantor is a trusted caller such as
// the seed or a system administrator.
type Grantor struct {
	UserID snowflake.ID
	Level  rbacdomain.AccessLevel
}

// Allows reports whether the grantor may hand out a role of level carrying keys.
func (g *Grantor) Allows(level rbacdomain.AccessLevel, keys []rbacdomain.PermissionKey) bool {
	if g == nil {
		return true
	}
	if level.Above(g.Level) {
		return false
	}
	for _, key := range keys {
		if rbacdomain.PermissionLevel(key).Above(g.Level) {
			return false
		}
	}
	return true
}

type CreateOrganisationRequest struct {
	Name string
}

type CreateBranchRequest struct {
	OrganisationID snowflake.ID
	Name           string
}

type CreatePropertyRequest struct {
	BranchID snowflake.ID
	Name     string
}

// CreateOrganisationUserRequest grants an organisation-level role.
// Extras may only contain toggleable permissions (app_access, web_access).
type CreateOrganisationUserRequest struct {
	OrganisationID snowflake.ID
	UserID         snowflake.ID
	RoleKey        rbacdomain.RoleKey
	IsAdmin        bool
	Extras         []rbacdomain.PermissionKey
	Grantor        *Grantor
}

// CreateBranchUserRequest grants a branch-level or property-level role.
type CreateBranchUserRequest struct {
	BranchID   snowflake.ID
	UserID     snowflake.ID
	RoleKey    rbacdomain.RoleKey
	IsAdmin    bool
	Extras     []rbacdomain.PermissionKey
	TradeCodes []string
	Grantor    *Grantor
}

type OrganisationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	RoleKey   string    `json:"role_key"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	MembershipID string    `json:"membership_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	RoleKey      string    `json:"role_key"`
	BranchID     string    `json:"branch_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type MemberListResponse struct {
	Members  []MemberResponse     `json:"members"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

const (
	TopicMembershipGranted = "membership.granted"
	TopicMembershipRevoked = "membership.revoked"
)

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidOrganisation = errors.New("invalid_organisation")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidPermission   = errors.New("invalid_permission")
	ErrInvalidTradeCode    = errors.New("invalid_trade_code")
	ErrOrganisationExists  = errors.New("organisation_exists")
	ErrTradeCodeExists     = errors.New("trade_code_exists")
	ErrMembershipExists    = errors.New("membership_exists")
	ErrNotFound            = errors.New("not_found")
	ErrGrantExceedsCaller  = errors.New("grant_exceeds_caller")
)
