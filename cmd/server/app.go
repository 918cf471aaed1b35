package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/cache"
	"github.com/diewo77/go-recipes/internal/config"
	"github.com/diewo77/go-recipes/internal/handlers"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/server"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/diewo77/go-recipes/internal/validation"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// newApp wires storage, the token verifier and the router. The returned
// func releases the connections opened here.
func newApp(ctx context.Context, cfg *config.Config, dbConn *gorm.DB, logger zerolog.Logger) (http.Handler, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, closeAll, fmt.Errorf("image storage: %w", err)
	}
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("image storage ready")

	users := services.NewUserService(dbConn)
	tokens := auth.NewTokenAuth(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, closeAll, fmt.Errorf("redis connect: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		verifier := cache.NewRedisVerifier(users.IsActive, rdb, cfg.Auth.VerifyCacheTTL, logger)
		tokens.SetUserVerifier(verifier.Verify)
		users.OnChange = verifier.Invalidate
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("verifier cache: redis")
	} else {
		verifier := cache.NewMemoryVerifier(users.IsActive, cfg.Auth.VerifyCacheTTL)
		tokens.SetUserVerifier(verifier.Verify)
		users.OnChange = verifier.Invalidate
	}

	handler := server.New(server.Deps{
		DB:     dbConn,
		Config: cfg,
		Tokens: tokens,
		Store:  store,
		Log:    logger,
		Users:  users,
	})
	return handler, closeAll, nil
}

// createSuperuser validates and stores a staff superuser.
func createSuperuser(dbConn *gorm.DB, email, password string) error {
	v := make(validation.Violations)
	validation.Required("email", email, v)
	validation.Email("email", email, v)
	validation.Required("password", password, v)
	validation.MinLength("password", password, handlers.MinPasswordLength, v)
	validation.MaxBytes("password", password, models.MaxPasswordBytes, v)
	if !v.Empty() {
		return fmt.Errorf("invalid superuser: %v", v)
	}
	_, err := services.NewUserService(dbConn).CreateSuperuser(context.Background(), email, password)
	if errors.Is(err, services.ErrEmailTaken) {
		return fmt.Errorf("user %s already exists", email)
	}
	return err
}
