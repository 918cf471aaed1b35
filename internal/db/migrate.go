package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/go-recipes/internal/config"
	"github.com/diewo77/go-recipes/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// AutoMigrate creates or updates the schema from the GORM models,
// join tables included.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Ingredient{},
		&models.Recipe{},
	)
}

// Migrate applies the schema. With SQL migrations enabled (postgres only)
// the embedded migrations are run via golang-migrate, otherwise AutoMigrate
// is used as the dev convenience path.
func Migrate(db *gorm.DB, dbCfg config.DatabaseConfig, useSQL bool) error {
	if useSQL {
		if dbCfg.Driver != "postgres" && dbCfg.Driver != "" {
			return fmt.Errorf("sql migrations only support postgres, got %q", dbCfg.Driver)
		}
		if err := RunSQLMigrations(dbCfg.URL()); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
	} else if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"users", "tags", "ingredients", "recipes", "recipe_tags", "recipe_ingredients"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// RunSQLMigrations executes the embedded migrations against a postgres URL.
func RunSQLMigrations(databaseURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
