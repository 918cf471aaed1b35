package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/storage"
)

// Price is a two-decimal amount. It encodes as a JSON string ("5.25") and
// decodes from either a number or a numeric string.
type Price float64

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(p), 'f', 2, 64))
}

func (p *Price) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("price must be a decimal number")
	}
	*p = Price(math.Round(f*100) / 100)
	return nil
}

type userResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{Email: u.Email, Name: u.Name}
}

type attributeResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type recipeResponse struct {
	ID          uint    `json:"id"`
	Title       string  `json:"title"`
	Ingredients []uint  `json:"ingredients"`
	Tags        []uint  `json:"tags"`
	TimeMinutes int     `json:"time_minutes"`
	Price       Price   `json:"price"`
	Link        string  `json:"link"`
	Image       *string `json:"image"`
}

type recipeDetailResponse struct {
	ID          uint                `json:"id"`
	Title       string              `json:"title"`
	Ingredients []attributeResponse `json:"ingredients"`
	Tags        []attributeResponse `json:"tags"`
	TimeMinutes int                 `json:"time_minutes"`
	Price       Price               `json:"price"`
	Link        string              `json:"link"`
	Image       *string             `json:"image"`
}

type recipeImageResponse struct {
	ID    uint    `json:"id"`
	Image *string `json:"image"`
}

func imageURL(store storage.ImageStore, key string) *string {
	if key == "" || store == nil {
		return nil
	}
	u := store.URL(key)
	return &u
}

func newRecipeResponse(r *models.Recipe, store storage.ImageStore) recipeResponse {
	return recipeResponse{
		ID:          r.ID,
		Title:       r.Title,
		Ingredients: r.IngredientIDs(),
		Tags:        r.TagIDs(),
		TimeMinutes: r.TimeMinutes,
		Price:       Price(r.Price),
		Link:        r.Link,
		Image:       imageURL(store, r.Image),
	}
}

func newRecipeDetailResponse(r *models.Recipe, store storage.ImageStore) recipeDetailResponse {
	tags := make([]attributeResponse, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, attributeResponse{ID: t.ID, Name: t.Name})
	}
	ings := make([]attributeResponse, 0, len(r.Ingredients))
	for _, i := range r.Ingredients {
		ings = append(ings, attributeResponse{ID: i.ID, Name: i.Name})
	}
	return recipeDetailResponse{
		ID:          r.ID,
		Title:       r.Title,
		Ingredients: ings,
		Tags:        tags,
		TimeMinutes: r.TimeMinutes,
		Price:       Price(r.Price),
		Link:        r.Link,
		Image:       imageURL(store, r.Image),
	}
}
