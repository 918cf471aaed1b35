package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/db/dbtest"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/policy"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	store  *storage.FSStore
	tokens *auth.TokenAuth
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	store := storage.NewFSStore(t.TempDir(), "/media")
	tokens := auth.NewTokenAuth("test-secret", 0)
	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	r.Route("/api/user", func(r chi.Router) {
		NewUserHandler(services.NewUserService(db), tokens).Register(r, passthrough, tokens.RequireAuth)
	})
	r.Route("/api/recipe", func(r chi.Router) {
		r.Route("/tags", NewTagHandler(services.NewTagService(db)).Register)
		r.Route("/ingredients", NewIngredientHandler(services.NewIngredientService(db)).Register)
		r.Route("/recipes", NewRecipeHandler(services.NewRecipeService(db, store), policy.NewOwnershipGate()).Register)
	})
	return &testEnv{db: db, store: store, tokens: tokens, router: r}
}

func (e *testEnv) createUser(t *testing.T) *models.User {
	t.Helper()
	u, err := services.NewUserService(e.db).CreateUser(context.Background(), services.CreateUserInput{
		Email:    gofakeit.Email(),
		Password: gofakeit.Password(true, true, true, false, false, 10),
		Name:     gofakeit.Name(),
	})
	require.NoError(t, err)
	return u
}

// do sends a JSON request as uid (0 means anonymous).
func (e *testEnv) do(t *testing.T, uid uint, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if uid != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), uid))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, uid uint, path string, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "upload.jpg")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(auth.WithUserID(req.Context(), uid))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))
	return buf.Bytes()
}

type errorBody struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func ptr[T any](v T) *T { return &v }

func sampleRecipe(t *testing.T, db *gorm.DB, uid uint, title string) *models.Recipe {
	t.Helper()
	r, err := services.NewRecipeService(db, nil).Create(context.Background(), uid, services.RecipeInput{
		Title:       ptr(title),
		TimeMinutes: ptr(10),
		Price:       ptr(5.0),
	})
	require.NoError(t, err)
	return r
}
