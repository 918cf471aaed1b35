package models

import "time"

// Tag is a user-owned label attachable to recipes.
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
	Name      string    `gorm:"size:255;not null" json:"name"`

	// UserID is the owner of this tag
	UserID uint  `gorm:"index;not null" json:"-"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// GetUserID implements the Ownable interface.
func (t *Tag) GetUserID() uint { return t.UserID }

// Ingredient is a user-owned ingredient attachable to recipes.
type Ingredient struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
	Name      string    `gorm:"size:255;not null" json:"name"`

	UserID uint  `gorm:"index;not null" json:"-"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// GetUserID implements the Ownable interface.
func (i *Ingredient) GetUserID() uint { return i.UserID }

// Recipe is a user-owned recipe with optional image and links to tags and ingredients.
// Implements the Ownable interface for ownership-based authorization.
type Recipe struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the owner of this recipe
	UserID uint  `gorm:"index;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Title       string  `gorm:"size:255;not null" json:"title"`
	TimeMinutes int     `gorm:"not null" json:"time_minutes"`
	Price       float64 `gorm:"type:decimal(5,2);not null" json:"price"`
	Link        string  `gorm:"size:255" json:"link"`

	// Image holds the storage key of the uploaded image, empty when none.
	Image string `gorm:"size:255" json:"image,omitempty"`

	Tags        []Tag        `gorm:"many2many:recipe_tags;constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	Ingredients []Ingredient `gorm:"many2many:recipe_ingredients;constraint:OnDelete:CASCADE" json:"ingredients,omitempty"`
}

// GetUserID implements the Ownable interface for authorization.
func (r *Recipe) GetUserID() uint { return r.UserID }

// TagIDs returns the ids of the loaded tags.
func (r *Recipe) TagIDs() []uint {
	ids := make([]uint, 0, len(r.Tags))
	for _, t := range r.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// IngredientIDs returns the ids of the loaded ingredients.
func (r *Recipe) IngredientIDs() []uint {
	ids := make([]uint, 0, len(r.Ingredients))
	for _, i := range r.Ingredients {
		ids = append(ids, i.ID)
	}
	return ids
}
