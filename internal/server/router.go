// Package server assembles the HTTP API: routes, middleware and health checks.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/config"
	"github.com/diewo77/go-recipes/internal/db"
	"github.com/diewo77/go-recipes/internal/handlers"
	"github.com/diewo77/go-recipes/internal/httpx"
	"github.com/diewo77/go-recipes/internal/policy"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"gorm.io/gorm"
)

// Deps are the collaborators the router needs.
type Deps struct {
	DB     *gorm.DB
	Config *config.Config
	Tokens *auth.TokenAuth
	Store  storage.ImageStore
	Log    zerolog.Logger
	// Users is built from DB when nil.
	Users *services.UserService
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(trustedRealIP(d.Config.Server.TrustedProxies, d.Log))
	r.Use(hlog.NewHandler(d.Log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(withRecover)
	r.Use(chimw.StripSlashes)
	if origins := d.Config.Server.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}
	r.Use(d.Tokens.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	// --- Health endpoints ---
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context(), d.DB); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	throttle := NewIPThrottle(d.Config.Auth.TokenRate, d.Config.Auth.TokenBurst)
	userSvc := d.Users
	if userSvc == nil {
		userSvc = services.NewUserService(d.DB)
	}
	users := handlers.NewUserHandler(userSvc, d.Tokens)
	r.Route("/api/user", func(r chi.Router) {
		users.Register(r, throttle.Middleware, d.Tokens.RequireAuth)
	})

	gate := policy.NewOwnershipGate()
	r.Route("/api/recipe", func(r chi.Router) {
		r.Use(d.Tokens.RequireAuth)
		r.Route("/tags", handlers.NewTagHandler(services.NewTagService(d.DB)).Register)
		r.Route("/ingredients", handlers.NewIngredientHandler(services.NewIngredientService(d.DB)).Register)
		r.Route("/recipes", handlers.NewRecipeHandler(services.NewRecipeService(d.DB, d.Store), gate).Register)
	})

	mountMedia(r, d.Store, d.Config.Storage.MediaURL)
	return r
}

// mountMedia serves locally stored images when the filesystem backend is active.
func mountMedia(r chi.Router, store storage.ImageStore, mediaURL string) {
	fs, ok := store.(*storage.FSStore)
	if !ok || !strings.HasPrefix(mediaURL, "/") {
		return
	}
	prefix := strings.TrimRight(mediaURL, "/")
	r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(fs.Root()))))
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().Interface("panic", rec).Msg("recovered from panic")
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
