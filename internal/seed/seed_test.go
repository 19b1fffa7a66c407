package seed_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	"github.com/smallbiznis/quickcart/internal/migration"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"github.com/smallbiznis/quickcart/internal/seed"
	"github.com/smallbiznis/quickcart/pkg/db"
	"github.com/stretchr/testify/require"
)

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, seed.EnsureCatalog(ctx, conn, node))
	require.NoError(t, seed.EnsureCatalog(ctx, conn, node))

	var roles int64
	require.NoError(t, conn.Model(&rbacdomain.Role{}).Count(&roles).Error)
	require.Equal(t, int64(len(rbacdomain.Catalog)), roles)

	var perms int64
	require.NoError(t, conn.Model(&rbacdomain.Permission{}).Count(&perms).Error)
	require.Equal(t, int64(len(rbacdomain.AllPermissionKeys)), perms)

	var system rbacdomain.Role
	require.NoError(t, conn.Where("role_key = ?", rbacdomain.RoleSystem).First(&system).Error)
	require.Equal(t, rbacdomain.AccessLevelSystem, system.RoleAccessLevel)
}

func TestEnsureDemoDataUsesSlug(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, seed.EnsureDemoData(ctx, conn, node))
	require.NoError(t, seed.EnsureDemoData(ctx, conn, node))

	var orgs []organizationdomain.Organisation
	require.NoError(t, conn.Find(&orgs).Error)
	require.Len(t, orgs, 1)
	require.Equal(t, "quickcart-demo", orgs[0].Slug)

	var branches int64
	require.NoError(t, conn.Model(&organizationdomain.Branch{}).Where("organisation_id = ?", orgs[0].ID).Count(&branches).Error)
	require.Equal(t, int64(1), branches)

	var admins int64
	require.NoError(t, conn.Model(&authdomain.Admin{}).Count(&admins).Error)
	require.Equal(t, int64(1), admins)
}
