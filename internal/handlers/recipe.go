package handlers

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/httpx"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/policy"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/storage"
	"github.com/diewo77/go-recipes/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// MaxImageUpload bounds the multipart body of an image upload.
const MaxImageUpload = 10 << 20

// MaxPrice is the exclusive upper bound of a recipe price (decimal 5,2).
const MaxPrice = 1000

type RecipeHandler struct {
	svc  *services.RecipeService
	gate *policy.Gate[uint]
}

func NewRecipeHandler(svc *services.RecipeService, gate *policy.Gate[uint]) *RecipeHandler {
	return &RecipeHandler{svc: svc, gate: gate}
}

func (h *RecipeHandler) Register(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Patch("/", h.PartialUpdate)
		r.Delete("/", h.Delete)
		r.Post("/upload-image", h.UploadImage)
	})
}

type recipeRequest struct {
	Title       *string `json:"title"`
	TimeMinutes *int    `json:"time_minutes"`
	Price       *Price  `json:"price"`
	Link        *string `json:"link"`
	Tags        *[]uint `json:"tags"`
	Ingredients *[]uint `json:"ingredients"`
}

// toInput validates req. Full requests (create, PUT) need title, time and
// price; missing link and relations reset to empty.
func (req recipeRequest) toInput(partial bool) (services.RecipeInput, validation.Violations) {
	v := make(validation.Violations)
	if !partial {
		if req.Title == nil {
			v.Add("title", "required")
		}
		if req.TimeMinutes == nil {
			v.Add("time_minutes", "required")
		}
		if req.Price == nil {
			v.Add("price", "required")
		}
	}
	if req.Title != nil {
		validation.Required("title", *req.Title, v)
		validation.MaxLength("title", *req.Title, 255, v)
	}
	if req.TimeMinutes != nil {
		validation.NonNegativeInt("time_minutes", *req.TimeMinutes, v)
	}
	if req.Price != nil {
		validation.RangeFloat("price", float64(*req.Price), 0, MaxPrice, v)
	}
	if req.Link != nil {
		validation.MaxLength("link", *req.Link, 255, v)
	}
	checkIDRange("tags", req.Tags, v)
	checkIDRange("ingredients", req.Ingredients, v)

	in := services.RecipeInput{
		Title:       req.Title,
		TimeMinutes: req.TimeMinutes,
		Link:        req.Link,
		Tags:        req.Tags,
		Ingredients: req.Ingredients,
	}
	if req.Price != nil {
		p := float64(*req.Price)
		in.Price = &p
	}
	if !partial {
		if in.Link == nil {
			in.Link = new(string)
		}
		if in.Tags == nil {
			in.Tags = &[]uint{}
		}
		if in.Ingredients == nil {
			in.Ingredients = &[]uint{}
		}
	}
	return in, v
}

// checkIDRange flags ids no row can have; the id columns are signed BIGINT.
func checkIDRange(field string, ids *[]uint, v validation.Violations) {
	if ids == nil {
		return
	}
	for _, id := range *ids {
		if uint64(id) > math.MaxInt64 {
			v.Add(field, "does_not_exist")
			return
		}
	}
}

// parseIDs turns "1,2,3" into ids. Blank input means no filter.
func parseIDs(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		// 63 bits keeps ids inside the signed BIGINT range of the id columns.
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 63)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()
	var f services.RecipeFilter
	var err error
	bad := make(validation.Violations)
	if f.TagIDs, err = parseIDs(q.Get("tags")); err != nil {
		bad.Add("tags", "invalid")
	}
	if f.IngredientIDs, err = parseIDs(q.Get("ingredients")); err != nil {
		bad.Add("ingredients", "invalid")
	}
	if !bad.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", bad)
		return
	}

	recipes, err := h.svc.List(r.Context(), userID, f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list recipes")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	out := make([]recipeResponse, 0, len(recipes))
	for i := range recipes {
		out = append(out, newRecipeResponse(&recipes[i], h.svc.Store))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req recipeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in, v := req.toInput(false)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	rec, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		h.writeServiceError(w, r, err, "create recipe")
		return
	}
	httpx.JSON(w, http.StatusCreated, newRecipeResponse(rec, h.svc.Store))
}

// load fetches the recipe named in the URL and authorizes action on it.
// Missing and foreign recipes both answer 404.
func (h *RecipeHandler) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*models.Recipe, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 63)
	if err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return nil, false
	}
	rec, err := h.svc.Get(r.Context(), uint(id))
	if errors.Is(err, services.ErrNotFound) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return nil, false
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("load recipe")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return nil, false
	}
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.gate.Authorize(r.Context(), userID, action, policy.ResourceRecipe, rec); err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return nil, false
	}
	return rec, true
}

func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, newRecipeDetailResponse(rec, h.svc.Store))
}

func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) { h.update(w, r, false) }

func (h *RecipeHandler) PartialUpdate(w http.ResponseWriter, r *http.Request) { h.update(w, r, true) }

func (h *RecipeHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	rec, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req recipeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in, v := req.toInput(partial)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	rec, err := h.svc.Update(r.Context(), rec, in)
	if err != nil {
		h.writeServiceError(w, r, err, "update recipe")
		return
	}
	httpx.JSON(w, http.StatusOK, newRecipeDetailResponse(rec, h.svc.Store))
}

func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), rec); err != nil {
		h.writeServiceError(w, r, err, "delete recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecipeHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageUpload)
	if err := r.ParseMultipartForm(MaxImageUpload); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"image": "invalid_image"})
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"image": "required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"image": "invalid_image"})
		return
	}

	rec, err = h.svc.SetImage(r.Context(), rec, data)
	if errors.Is(err, storage.ErrInvalidImage) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"image": "invalid_image"})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err, "upload recipe image")
		return
	}
	httpx.JSON(w, http.StatusOK, recipeImageResponse{ID: rec.ID, Image: imageURL(h.svc.Store, rec.Image)})
}

func (h *RecipeHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var relErr *services.RelationError
	if errors.As(err, &relErr) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{relErr.Field: "does_not_exist"})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg(op)
	httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
}
