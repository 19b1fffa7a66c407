package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
)

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks

// MembershipFilter scopes membership reads. Nil fields do not filter.
type MembershipFilter struct {
	UserID         snowflake.ID
	RoleIDs        []snowflake.ID
	OrganisationID *snowflake.ID
	BranchID       *snowflake.ID
	PropertyID     *snowflake.ID
}

// Repository reads memberships with their role and policy permissions loaded, oldest grant first.
type Repository interface {
	OrganisationMemberships(ctx context.Context, filter MembershipFilter) ([]organizationdomain.OrganisationUser, error)
	BranchMemberships(ctx context.Context, filter MembershipFilter) ([]organizationdomain.BranchUser, error)

	FindOrganisationMembership(ctx context.Context, userID, organisationID snowflake.ID) (*organizationdomain.OrganisationUser, error)
	FindBranchMembership(ctx context.Context, userID, branchID snowflake.ID) (*organizationdomain.BranchUser, error)
	PropertyBranchID(ctx context.Context, propertyID snowflake.ID) (snowflake.ID, error)

	HoldsRoleInOrganisation(ctx context.Context, userID, organisationID, roleID snowflake.ID) (bool, error)
}
