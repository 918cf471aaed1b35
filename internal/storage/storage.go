// Package storage persists recipe images on the local filesystem or in an
// S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/diewo77/go-recipes/internal/config"
	"github.com/google/uuid"
)

// RecipeImageDir is the key prefix of uploaded recipe images.
const RecipeImageDir = "uploads/recipe"

// ErrInvalidKey is returned for keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid object key")

// ImageStore saves and removes image objects addressed by key.
type ImageStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ImageKey returns a fresh object key for a recipe image with extension ext (".jpg").
func ImageKey(ext string) string {
	return path.Join(RecipeImageDir, uuid.NewString()+ext)
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ImageStore, error) {
	switch cfg.Backend {
	case "fs", "":
		return NewFSStore(cfg.MediaRoot, cfg.MediaURL), nil
	case "minio":
		return NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MediaURL)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.Backend)
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}

// FSStore keeps images under a local media root.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore stores files below root and serves them from baseURL.
func NewFSStore(root, baseURL string) *FSStore {
	return &FSStore{root: root, baseURL: baseURL}
}

// Root returns the directory served under the media URL.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Save writes data to key, creating parent directories.
func (s *FSStore) Save(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// Delete removes key. Missing files are not an error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// URL returns the public URL of key.
func (s *FSStore) URL(key string) string { return joinURL(s.baseURL, key) }
