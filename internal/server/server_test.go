package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/cache"
	"github.com/diewo77/go-recipes/internal/config"
	"github.com/diewo77/go-recipes/internal/db/dbtest"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
	db      *gorm.DB
}

func newAPI(t *testing.T, mutate func(*config.Config)) *apiClient {
	t.Helper()
	gdb := dbtest.Open(t)
	cfg := &config.Config{
		Auth:    config.AuthConfig{TokenSecret: "test", TokenRate: 100, TokenBurst: 100},
		Storage: config.StorageConfig{Backend: "fs", MediaRoot: t.TempDir(), MediaURL: "/media"},
		Server:  config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	tokens := auth.NewTokenAuth(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	users := services.NewUserService(gdb)
	verifier := cache.NewMemoryVerifier(users.IsActive, 0)
	tokens.SetUserVerifier(verifier.Verify)
	store := storage.NewFSStore(cfg.Storage.MediaRoot, cfg.Storage.MediaURL)

	h := New(Deps{DB: gdb, Config: cfg, Tokens: tokens, Store: store, Log: zerolog.Nop()})
	return &apiClient{t: t, handler: h, db: gdb}
}

func (c *apiClient) send(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	return w
}

// signup creates a user through the API and returns a token for it.
func (c *apiClient) signup() (email, token string) {
	c.t.Helper()
	email = gofakeit.Email()
	password := gofakeit.Password(true, true, true, false, false, 12)
	w := c.send(http.MethodPost, "/api/user/create", "", map[string]string{"email": email, "password": password, "name": gofakeit.Name()})
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
	w = c.send(http.MethodPost, "/api/user/token", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]string
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out))
	return email, out["token"]
}

func TestHealth(t *testing.T) {
	api := newAPI(t, nil)
	w := api.send(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = api.send(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	sqlDB, err := api.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	w = api.send(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded"}`, w.Body.String())
}

func TestRecipeEndpointsRequireAuth(t *testing.T) {
	api := newAPI(t, nil)
	for _, path := range []string{"/api/recipe/tags", "/api/recipe/ingredients", "/api/recipe/recipes", "/api/recipe/recipes/1", "/api/user/me"} {
		w := api.send(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String(), path)

		w = api.send(http.MethodGet, path, "forged.token.value", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestTokenFlow(t *testing.T) {
	api := newAPI(t, nil)
	email, token := api.signup()

	w := api.send(http.MethodGet, "/api/user/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, email, me["email"])

	req := httptest.NewRequest(http.MethodGet, "/api/recipe/tags/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "bearer scheme and trailing slash accepted")
}

func TestDeactivatedUserTokenRejected(t *testing.T) {
	api := newAPI(t, nil)
	email, token := api.signup()
	require.NoError(t, api.db.Model(&models.User{}).Where("email = ?", email).Update("is_active", false).Error)

	w := api.send(http.MethodGet, "/api/recipe/recipes", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenEndpointThrottled(t *testing.T) {
	api := newAPI(t, func(c *config.Config) {
		c.Auth.TokenRate = 0.001
		c.Auth.TokenBurst = 2
	})
	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		w := api.send(http.MethodPost, "/api/user/token", "", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := api.send(http.MethodPost, "/api/user/token", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"throttled"}`, w.Body.String())
}

// tokenAttempts posts failing logins, each with a different X-Forwarded-For.
func tokenAttempts(api *apiClient, n int) []int {
	var codes []int
	for i := 0; i < n; i++ {
		body := bytes.NewBufferString(`{"email":"nobody@example.com","password":"whatever"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/user/token", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "203.0.113."+itoa(uint(i+1)))
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	return codes
}

func TestTokenThrottleIgnoresForwardedForFromClients(t *testing.T) {
	api := newAPI(t, func(c *config.Config) {
		c.Auth.TokenRate = 0.001
		c.Auth.TokenBurst = 2
	})
	codes := tokenAttempts(api, 6)
	assert.Equal(t, []int{400, 400, 429, 429, 429, 429}, codes)
}

func TestTokenThrottleHonoursTrustedProxy(t *testing.T) {
	api := newAPI(t, func(c *config.Config) {
		c.Auth.TokenRate = 0.001
		c.Auth.TokenBurst = 2
		// httptest requests come from 192.0.2.1.
		c.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})
	codes := tokenAttempts(api, 6)
	assert.Equal(t, []int{400, 400, 400, 400, 400, 400}, codes)
}

func TestFromProxy(t *testing.T) {
	prefixes := parseProxies([]string{"10.0.0.0/8", "192.0.2.7", "bogus", " "}, zerolog.Nop())
	require.Len(t, prefixes, 2)
	assert.True(t, fromProxy("10.1.2.3:5000", prefixes))
	assert.True(t, fromProxy("192.0.2.7:80", prefixes))
	assert.True(t, fromProxy("[::ffff:192.0.2.7]:80", prefixes))
	assert.False(t, fromProxy("192.0.2.8:80", prefixes))
	assert.False(t, fromProxy("not-an-addr", prefixes))
}

func TestRecipesIsolatedBetweenUsers(t *testing.T) {
	api := newAPI(t, nil)
	_, alice := api.signup()
	_, bob := api.signup()

	w := api.send(http.MethodPost, "/api/recipe/tags", alice, map[string]string{"name": "Vegan"})
	require.Equal(t, http.StatusCreated, w.Code)
	var tag struct{ ID uint }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tag))

	w = api.send(http.MethodPost, "/api/recipe/recipes/", alice, map[string]any{
		"title": "Salad", "time_minutes": 5, "price": "3.50", "tags": []uint{tag.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var recipe struct{ ID uint }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recipe))

	w = api.send(http.MethodGet, "/api/recipe/recipes", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	w = api.send(http.MethodGet, "/api/recipe/tags", bob, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = api.send(http.MethodGet, "/api/recipe/recipes/"+itoa(recipe.ID), bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.send(http.MethodPost, "/api/recipe/recipes", bob, map[string]any{
		"title": "Borrowed", "time_minutes": 5, "price": 1, "tags": []uint{tag.ID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "cannot attach another user's tag")

	w = api.send(http.MethodGet, "/api/recipe/recipes/"+itoa(recipe.ID), alice, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadedImageServedFromMedia(t *testing.T) {
	api := newAPI(t, nil)
	_, token := api.signup()
	w := api.send(http.MethodPost, "/api/recipe/recipes", token, map[string]any{"title": "Pie", "time_minutes": 40, "price": 8})
	require.Equal(t, http.StatusCreated, w.Code)
	var recipe struct{ ID uint }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recipe))

	var img bytes.Buffer
	require.NoError(t, jpeg.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "pie.jpg")
	require.NoError(t, err)
	_, _ = fw.Write(img.Bytes())
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/recipe/recipes/"+itoa(recipe.ID)+"/upload-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Token "+token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var uploaded struct{ Image string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))

	w = api.send(http.MethodGet, uploaded.Image, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, img.Bytes(), w.Body.Bytes())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	api := newAPI(t, nil)
	_, token := api.signup()

	w := api.send(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, w.Body.String())

	w = api.send(http.MethodDelete, "/api/recipe/tags", token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	api := newAPI(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/recipe/tags", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverWritesJSON(t *testing.T) {
	h := withRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error"}`, w.Body.String())
}

func TestIPThrottle(t *testing.T) {
	th := NewIPThrottle(1, 1)
	now := time.Now()
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("10.0.0.1"))
	assert.False(t, th.Allow("10.0.0.1"))
	assert.True(t, th.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, th.Allow("10.0.0.1"), "bucket refills")

	now = now.Add(time.Hour)
	th.Allow("10.0.0.3")
	assert.Len(t, th.visitors, 1, "idle buckets evicted")

	unlimited := NewIPThrottle(0, 1)
	for range 10 {
		assert.True(t, unlimited.Allow("x"))
	}
}

func TestUserVerifierCachesLookups(t *testing.T) {
	gdb := dbtest.Open(t)
	users := services.NewUserService(gdb)
	u, err := users.CreateUser(context.Background(), services.CreateUserInput{Email: gofakeit.Email(), Password: "secret1"})
	require.NoError(t, err)
	v := cache.NewMemoryVerifier(users.IsActive, time.Minute)
	assert.True(t, v.Verify(context.Background(), u.ID))
	assert.False(t, v.Verify(context.Background(), u.ID+1))
}
