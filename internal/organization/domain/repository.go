package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"gorm.io/gorm"
)

type OrganisationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	RoleKey   string
	CreatedAt time.Time
}

// MemberListItem is one organisation-level or branch-level grant inside an organisation.
type MemberListItem struct {
	MembershipID snowflake.ID
	UserID       snowflake.ID
	DisplayName  string
	Email        string
	RoleKey      string
	BranchID     *snowflake.ID
	CreatedAt    time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrganisation(ctx context.Context, org Organisation) error
	FindOrganisation(ctx context.Context, id snowflake.ID) (*Organisation, error)
	CreateBranch(ctx context.Context, branch Branch) error
	FindBranch(ctx context.Context, id snowflake.ID) (*Branch, error)
	CreateProperty(ctx context.Context, property Property) error
	FindProperty(ctx context.Context, id snowflake.ID) (*Property, error)
	CreateTradeCode(ctx context.Context, code TradeCode) error
	TradeCodesByCodes(ctx context.Context, codes []string) ([]TradeCode, error)

	UserDisplayName(ctx context.Context, userID snowflake.ID) (string, error)

	CreateOrganisationUser(ctx context.Context, member *OrganisationUser) error
	FindOrganisationUser(ctx context.Context, orgID, userID snowflake.ID) (*OrganisationUser, error)
	DeleteOrganisationUser(ctx context.Context, id snowflake.ID) error
	CreateBranchUser(ctx context.Context, member *BranchUser) error
	FindBranchUser(ctx context.Context, branchID, userID snowflake.ID) (*BranchUser, error)
	DeleteBranchUser(ctx context.Context, id snowflake.ID) error
	ListOrganisationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganisationListItem, error)
	ListMembers(ctx context.Context, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]MemberListItem, error)

	CreatePolicy(ctx context.Context, policy *rbacdomain.Policy) error
	FindPolicy(ctx context.Context, id snowflake.ID) (*rbacdomain.Policy, error)
	PolicyOrganisationID(ctx context.Context, policyID snowflake.ID) (snowflake.ID, error)
	ReplacePolicyPermissions(ctx context.Context, policy *rbacdomain.Policy) error
	DeletePolicy(ctx context.Context, id snowflake.ID) error

	InsertOutboxEvent(ctx context.Context, event OutboxEvent) error
	PendingOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, ids []snowflake.ID) error
}
