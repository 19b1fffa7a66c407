package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quickcart/internal/clock"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/migration"
	"github.com/smallbiznis/quickcart/internal/observability"
	"github.com/smallbiznis/quickcart/internal/outbox"
	"github.com/smallbiznis/quickcart/internal/rbac"
	"github.com/smallbiznis/quickcart/internal/server"
	"github.com/smallbiznis/quickcart/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// schema and catalog seed run before any route is served
		migration.Module,
		rbac.Module,
		server.Module,

		outbox.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	nodeID := cfg.NodeID
	if nodeID <= 0 {
		nodeID = 1
	}
	return snowflake.NewNode(nodeID)
}
