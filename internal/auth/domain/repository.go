package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	CreateUser(ctx context.Context, user *User) error
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id snowflake.ID) (*User, error)
	CreateAdmin(ctx context.Context, admin *Admin) error
	FindAdminByEmail(ctx context.Context, email string) (*Admin, error)
}

type TokenRepository interface {
	CreateToken(ctx context.Context, token *AccessToken) error
	FindToken(ctx context.Context, id snowflake.ID) (*AccessToken, error)
	TouchToken(ctx context.Context, id snowflake.ID, usedAt time.Time) error
	DeleteToken(ctx context.Context, id snowflake.ID) error
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// MembershipChecker verifies that a user holds a role inside an organisation,
// either directly or through one of the organisation's branches.
type MembershipChecker interface {
	HoldsRoleInOrganisation(ctx context.Context, userID, organisationID, roleID snowflake.ID) (bool, error)
}
