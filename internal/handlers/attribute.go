package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/httpx"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// AttributeHandler lists and creates tags or ingredients of the current user.
type AttributeHandler[T any] struct {
	svc  *services.AttributeService[T]
	view func(T) attributeResponse
}

func NewTagHandler(svc *services.AttributeService[models.Tag]) *AttributeHandler[models.Tag] {
	return &AttributeHandler[models.Tag]{svc: svc, view: func(t models.Tag) attributeResponse {
		return attributeResponse{ID: t.ID, Name: t.Name}
	}}
}

func NewIngredientHandler(svc *services.AttributeService[models.Ingredient]) *AttributeHandler[models.Ingredient] {
	return &AttributeHandler[models.Ingredient]{svc: svc, view: func(i models.Ingredient) attributeResponse {
		return attributeResponse{ID: i.ID, Name: i.Name}
	}}
}

func (h *AttributeHandler[T]) Register(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
}

// parseFlag reads an optional 0/1 style query flag.
func parseFlag(raw string) (bool, error) {
	if raw = strings.TrimSpace(raw); raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func (h *AttributeHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	assignedOnly, err := parseFlag(r.URL.Query().Get("assigned_only"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", validation.Violations{"assigned_only": "invalid"})
		return
	}
	items, err := h.svc.List(r.Context(), userID, assignedOnly)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list attributes")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	out := make([]attributeResponse, 0, len(items))
	for _, it := range items {
		out = append(out, h.view(it))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *AttributeHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var in struct {
		Name string `json:"name"`
	}
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	v := make(validation.Violations)
	validation.Required("name", in.Name, v)
	validation.MaxLength("name", in.Name, 255, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	obj, err := h.svc.Create(r.Context(), userID, in.Name)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create attribute")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.view(*obj))
}
