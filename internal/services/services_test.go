package services

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/diewo77/go-recipes/internal/db/dbtest"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memStore is an in-memory storage.ImageStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) URL(key string) string { return "/media/" + key }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func createUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u, err := NewUserService(db).CreateUser(context.Background(), CreateUserInput{
		Email:    gofakeit.Email(),
		Password: gofakeit.Password(true, true, true, false, false, 12),
		Name:     gofakeit.Name(),
	})
	require.NoError(t, err)
	return u
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

// recipeInput builds a complete create payload.
func recipeInput(title string) RecipeInput {
	return RecipeInput{
		Title:       ptr(title),
		TimeMinutes: ptr(10),
		Price:       ptr(5.25),
	}
}

func openDB(t *testing.T) *gorm.DB { return dbtest.Open(t) }
