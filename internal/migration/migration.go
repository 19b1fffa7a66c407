package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/quickcart/internal/audit/domain"
	authdomain "github.com/smallbiznis/quickcart/internal/auth/domain"
	organizationdomain "github.com/smallbiznis/quickcart/internal/organization/domain"
	rbacdomain "github.com/smallbiznis/quickcart/internal/rbac/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&rbacdomain.Role{},
		&rbacdomain.Permission{},
		&rbacdomain.Policy{},
		&organizationdomain.Organisation{},
		&organizationdomain.Branch{},
		&organizationdomain.Property{},
		&organizationdomain.TradeCode{},
		&authdomain.User{},
		&authdomain.Admin{},
		&organizationdomain.OrganisationUser{},
		&organizationdomain.BranchUser{},
		&authdomain.AccessToken{},
		&auditdomain.AuditLog{},
		&organizationdomain.OutboxEvent{},
	}
}

// AutoMigrate creates the schema through gorm for dialects without SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	return db.AutoMigrate(Models()...)
}
