package services

import (
	"context"
	"fmt"

	"github.com/diewo77/go-recipes/internal/models"
	"gorm.io/gorm"
)

// AttributeService lists and creates the user-owned labels attached to
// recipes. Tags and ingredients share it; they differ only in table names.
type AttributeService[T any] struct {
	DB         *gorm.DB
	kind       string
	joinTable  string
	joinColumn string
	build      func(userID uint, name string) *T
}

func NewTagService(db *gorm.DB) *AttributeService[models.Tag] {
	return &AttributeService[models.Tag]{
		DB:         db,
		kind:       "tag",
		joinTable:  "recipe_tags",
		joinColumn: "tag_id",
		build:      func(uid uint, name string) *models.Tag { return &models.Tag{UserID: uid, Name: name} },
	}
}

func NewIngredientService(db *gorm.DB) *AttributeService[models.Ingredient] {
	return &AttributeService[models.Ingredient]{
		DB:         db,
		kind:       "ingredient",
		joinTable:  "recipe_ingredients",
		joinColumn: "ingredient_id",
		build:      func(uid uint, name string) *models.Ingredient { return &models.Ingredient{UserID: uid, Name: name} },
	}
}

// List returns the user's objects ordered by name descending. With
// assignedOnly, only objects attached to at least one recipe are returned.
func (s *AttributeService[T]) List(ctx context.Context, userID uint, assignedOnly bool) ([]T, error) {
	out := make([]T, 0)
	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if assignedOnly {
		q = q.Where("id IN (?)", s.DB.Table(s.joinTable).Select(s.joinColumn))
	}
	if err := q.Order("name DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list %ss: %w", s.kind, err)
	}
	return out, nil
}

// Create stores a new object owned by userID.
func (s *AttributeService[T]) Create(ctx context.Context, userID uint, name string) (*T, error) {
	obj := s.build(userID, name)
	if err := s.DB.WithContext(ctx).Create(obj).Error; err != nil {
		return nil, fmt.Errorf("create %s: %w", s.kind, err)
	}
	return obj, nil
}
