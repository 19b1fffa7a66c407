package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/smallbiznis/quickcart/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		ctx := context.Background()
		if err := seed.EnsureCatalog(ctx, conn, node); err != nil {
			return err
		}
		if cfg.SeedDemoData {
			if err := seed.EnsureDemoData(ctx, conn, node); err != nil {
				return err
			}
			log.Info("demo data seeded")
		}
		return nil
	}),
)
