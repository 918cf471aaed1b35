package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RecipeFilter keeps recipes tied to at least one of the listed ids.
// Both lists must match when both are set.
type RecipeFilter struct {
	TagIDs        []uint
	IngredientIDs []uint
}

// RecipeInput carries recipe fields; nil fields are left untouched on update.
type RecipeInput struct {
	Title       *string
	TimeMinutes *int
	Price       *float64
	Link        *string
	Tags        *[]uint
	Ingredients *[]uint
}

// RecipeService holds recipe persistence and the image lifecycle.
type RecipeService struct {
	DB    *gorm.DB
	Store storage.ImageStore
}

func NewRecipeService(db *gorm.DB, store storage.ImageStore) *RecipeService {
	return &RecipeService{DB: db, Store: store}
}

func withRelations(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id") }).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("ingredients.id") })
}

// List returns the user's recipes, newest first.
func (s *RecipeService) List(ctx context.Context, userID uint, f RecipeFilter) ([]models.Recipe, error) {
	out := make([]models.Recipe, 0)
	q := withRelations(s.DB.WithContext(ctx)).Where("recipes.user_id = ?", userID)
	if len(f.TagIDs) > 0 {
		q = q.Where("recipes.id IN (?)", s.DB.Table("recipe_tags").Select("recipe_id").Where("tag_id IN ?", f.TagIDs))
	}
	if len(f.IngredientIDs) > 0 {
		q = q.Where("recipes.id IN (?)", s.DB.Table("recipe_ingredients").Select("recipe_id").Where("ingredient_id IN ?", f.IngredientIDs))
	}
	if err := q.Order("recipes.id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	return out, nil
}

// Get loads a recipe with its relations. Ownership is checked by the caller.
func (s *RecipeService) Get(ctx context.Context, id uint) (*models.Recipe, error) {
	var r models.Recipe
	err := withRelations(s.DB.WithContext(ctx)).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ownedByUser loads rows of T with the given ids, failing with a
// RelationError if any id is missing or belongs to someone else.
func ownedByUser[T any](tx *gorm.DB, userID uint, field string, ids []uint) ([]T, error) {
	out := make([]T, 0, len(ids))
	unique := dedupe(ids)
	if len(unique) == 0 {
		return out, nil
	}
	if err := tx.Where("user_id = ? AND id IN ?", userID, unique).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) != len(unique) {
		return nil, &RelationError{Field: field, IDs: unique}
	}
	return out, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Create stores a recipe for userID. Title, time and price must be set.
func (s *RecipeService) Create(ctx context.Context, userID uint, in RecipeInput) (*models.Recipe, error) {
	r := &models.Recipe{UserID: userID}
	applyScalars(r, in)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if in.Tags != nil {
			if r.Tags, err = ownedByUser[models.Tag](tx, userID, "tags", *in.Tags); err != nil {
				return err
			}
		}
		if in.Ingredients != nil {
			if r.Ingredients, err = ownedByUser[models.Ingredient](tx, userID, "ingredients", *in.Ingredients); err != nil {
				return err
			}
		}
		return tx.Omit("Tags.*", "Ingredients.*").Create(r).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create recipe: %w", err)
	}
	return s.Get(ctx, r.ID)
}

func applyScalars(r *models.Recipe, in RecipeInput) {
	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.TimeMinutes != nil {
		r.TimeMinutes = *in.TimeMinutes
	}
	if in.Price != nil {
		r.Price = *in.Price
	}
	if in.Link != nil {
		r.Link = *in.Link
	}
}

// Update applies in to r. A non-nil relation list replaces the whole set,
// an empty list clears it.
func (s *RecipeService) Update(ctx context.Context, r *models.Recipe, in RecipeInput) (*models.Recipe, error) {
	applyScalars(r, in)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(r).Select("title", "time_minutes", "price", "link", "updated_at").Updates(r).Error; err != nil {
			return err
		}
		if in.Tags != nil {
			tags, err := ownedByUser[models.Tag](tx, r.UserID, "tags", *in.Tags)
			if err != nil {
				return err
			}
			if err := replaceAssociation(tx, r, "Tags", tags); err != nil {
				return err
			}
		}
		if in.Ingredients != nil {
			ings, err := ownedByUser[models.Ingredient](tx, r.UserID, "ingredients", *in.Ingredients)
			if err != nil {
				return err
			}
			if err := replaceAssociation(tx, r, "Ingredients", ings); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update recipe: %w", err)
	}
	return s.Get(ctx, r.ID)
}

func replaceAssociation[T any](tx *gorm.DB, r *models.Recipe, name string, values []T) error {
	assoc := tx.Model(r).Association(name)
	if len(values) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(values)
}

// Delete removes the recipe, its join rows and its stored image.
func (s *RecipeService) Delete(ctx context.Context, r *models.Recipe) error {
	if err := s.DB.WithContext(ctx).Select("Tags", "Ingredients").Delete(r).Error; err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	if r.Image != "" && s.Store != nil {
		if err := s.Store.Delete(ctx, r.Image); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", r.Image).Msg("remove recipe image")
		}
	}
	return nil
}

// SetImage validates data as an image, stores it under a fresh key and
// points the recipe at it. On any failure the previous image stays in place.
func (s *RecipeService) SetImage(ctx context.Context, r *models.Recipe, data []byte) (*models.Recipe, error) {
	img, err := storage.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	key := storage.ImageKey(img.Ext)
	if err := s.Store.Save(ctx, key, data, img.ContentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	previous := r.Image
	if err := s.DB.WithContext(ctx).Model(r).Update("image", key).Error; err != nil {
		if delErr := s.Store.Delete(ctx, key); delErr != nil {
			zerolog.Ctx(ctx).Warn().Err(delErr).Str("key", key).Msg("remove orphaned image")
		}
		return nil, fmt.Errorf("set recipe image: %w", err)
	}
	r.Image = key
	if previous != "" && previous != key {
		if err := s.Store.Delete(ctx, previous); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", previous).Msg("remove previous image")
		}
	}
	return r, nil
}
