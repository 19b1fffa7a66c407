package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
)

type Service interface {
	// Resolve computes the caller's effective role, permissions and reachable resources.
	Resolve(ctx context.Context, principal *authdomain.Principal, levels LevelSelector, perms PermissionSelector, hint ScopeHint) (*Resolution, error)

	RoleForOrganisation(ctx context.Context, principal *authdomain.Principal, organisationID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*Membership, error)
	RoleForBranch(ctx context.Context, principal *authdomain.Principal, branchID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*Membership, error)
	RoleForProperty(ctx context.Context, principal *authdomain.Principal, propertyID snowflake.ID, roleKeys ...rbacdomain.RoleKey) (*Membership, error)
}
