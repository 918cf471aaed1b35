package db

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-recipes/internal/config"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectAttempts bounds the retries done by Connect while the database starts.
const ConnectAttempts = 10

// Dialector returns the GORM dialector for the configured driver.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(NormalizeDSN(cfg.DSN())), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

// GormConfig is shared by the server and tests so errors are translated the same way.
func GormConfig(debug bool) *gorm.Config {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}
}

// Connect opens the database, retrying while it is not reachable yet.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Str("dsn", MaskDSN(cfg.DSN())).Msg("connecting to database")

	var db *gorm.DB
	for i := 0; i < ConnectAttempts; i++ {
		db, err = gorm.Open(dialector, GormConfig(cfg.Debug))
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("database unavailable, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}

	// Basic connectivity test
	if pingErr := db.WithContext(ctx).Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	return db, nil
}

// Open builds a pool without contacting the database; the first query connects.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	gcfg := GormConfig(cfg.Debug)
	gcfg.DisableAutomaticPing = true
	return gorm.Open(dialector, gcfg)
}

// WaitForDatabase opens cfg lazily and polls it every interval until it
// answers or ctx is done. Only ctx bounds the wait.
func WaitForDatabase(ctx context.Context, cfg config.DatabaseConfig, interval time.Duration, log zerolog.Logger) error {
	d, err := Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, err := d.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	log.Info().Str("driver", cfg.Driver).Str("dsn", MaskDSN(cfg.DSN())).Msg("waiting for database")
	return WaitFor(ctx, d, interval, log)
}

// WaitFor blocks until the database answers SELECT 1 or ctx is done.
func WaitFor(ctx context.Context, db *gorm.DB, interval time.Duration, log zerolog.Logger) error {
	for {
		err := Ping(ctx, db)
		if err == nil {
			log.Info().Msg("database available")
			return nil
		}
		log.Info().Err(err).Msg("database unavailable, waiting")
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for db: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

// Ping checks connectivity through the underlying pool.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
