package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/go-recipes/internal/config"
	"github.com/diewo77/go-recipes/internal/db"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var (
	migrateOnlyFlag     = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	waitForDBFlag       = flag.Bool("wait-for-db", false, "Block until the database is reachable and exit")
	waitTimeoutFlag     = flag.Duration("wait-timeout", 60*time.Second, "Maximum time to wait with -wait-for-db")
	createSuperuserFlag = flag.Bool("create-superuser", false, "Create a superuser from -email and -password and exit")
	emailFlag           = flag.String("email", "", "Superuser email for -create-superuser")
	passwordFlag        = flag.String("password", "", "Superuser password for -create-superuser")
)

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg.App.Dev)

	if *waitForDBFlag {
		ctx, cancel := context.WithTimeout(context.Background(), *waitTimeoutFlag)
		defer cancel()
		if err := db.WaitForDatabase(ctx, cfg.Database, time.Second, logger); err != nil {
			logger.Fatal().Err(err).Msg("database did not become available")
		}
		return
	}

	dbConn, err := db.Connect(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(dbConn, cfg.Database, cfg.App.Migrations); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed successfully")
		return
	}

	if *createSuperuserFlag {
		if err := createSuperuser(dbConn, *emailFlag, *passwordFlag); err != nil {
			logger.Fatal().Err(err).Msg("create superuser failed")
		}
		logger.Info().Str("email", services.NormalizeEmail(*emailFlag)).Msg("superuser created")
		return
	}

	// SQL migrations when enabled, AutoMigrate in dev.
	if cfg.App.Migrations || cfg.App.Dev {
		if err := db.Migrate(dbConn, cfg.Database, cfg.App.Migrations); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")
	}

	appHandler, closeApp, err := newApp(context.Background(), cfg, dbConn, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	defer closeApp()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      appHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Bool("dev", cfg.App.Dev).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	logger.Info().Msg("server stopped gracefully")
}
