package handlers

import (
	"errors"
	"net/http"

	"github.com/diewo77/go-recipes/internal/auth"
	"github.com/diewo77/go-recipes/internal/httpx"
	"github.com/diewo77/go-recipes/internal/models"
	"github.com/diewo77/go-recipes/internal/services"
	"github.com/diewo77/go-recipes/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 5

// UserHandler serves account creation, token issuance and the current user.
type UserHandler struct {
	users  *services.UserService
	tokens *auth.TokenAuth
}

func NewUserHandler(users *services.UserService, tokens *auth.TokenAuth) *UserHandler {
	return &UserHandler{users: users, tokens: tokens}
}

// Register mounts the user routes. throttle wraps the token endpoint and
// requireAuth guards /me.
func (h *UserHandler) Register(r chi.Router, throttle, requireAuth func(http.Handler) http.Handler) {
	r.Post("/create", h.Create)
	r.With(throttle).Post("/token", h.Token)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", h.Me)
		r.Put("/me", h.Update)
		r.Patch("/me", h.PartialUpdate)
	})
}

type userRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
}

// readUserRequest accepts a JSON body or a urlencoded/multipart form.
func readUserRequest(w http.ResponseWriter, r *http.Request) (userRequest, error) {
	var req userRequest
	if httpx.IsJSON(r) {
		return req, httpx.DecodeJSON(w, r, &req)
	}
	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxJSONBody)
	if err := r.ParseForm(); err != nil {
		return req, errors.Join(httpx.ErrInvalidJSON, err)
	}
	field := func(name string) *string {
		if _, ok := r.PostForm[name]; !ok {
			return nil
		}
		v := r.PostForm.Get(name)
		return &v
	}
	req.Email, req.Password, req.Name = field("email"), field("password"), field("name")
	return req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// validate checks the fields present in req; required lists the ones that must be present.
func (req userRequest) validate(required bool) validation.Violations {
	v := make(validation.Violations)
	if req.Email != nil || required {
		validation.Required("email", deref(req.Email), v)
		validation.Email("email", deref(req.Email), v)
		validation.MaxLength("email", deref(req.Email), 255, v)
	}
	if req.Password != nil || required {
		validation.Required("password", deref(req.Password), v)
		validation.MinLength("password", deref(req.Password), MinPasswordLength, v)
		validation.MaxBytes("password", deref(req.Password), models.MaxPasswordBytes, v)
	}
	if req.Name != nil {
		validation.MaxLength("name", *req.Name, 255, v)
	}
	return v
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := readUserRequest(w, r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if v := req.validate(true); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	u, err := h.users.CreateUser(r.Context(), services.CreateUserInput{
		Email:    *req.Email,
		Password: *req.Password,
		Name:     deref(req.Name),
	})
	if errors.Is(err, services.ErrEmailTaken) {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"email": "already_exists"})
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("create user")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, newUserResponse(u))
}

func (h *UserHandler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := readUserRequest(w, r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := make(validation.Violations)
	validation.Required("email", deref(req.Email), v)
	validation.Required("password", deref(req.Password), v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	u, err := h.users.Authenticate(r.Context(), *req.Email, *req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_credentials", nil)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("authenticate")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("issue token")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	u, err := h.users.Get(r.Context(), uid)
	if errors.Is(err, services.ErrNotFound) {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("load current user")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserResponse(u))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) { h.update(w, r, false) }

func (h *UserHandler) PartialUpdate(w http.ResponseWriter, r *http.Request) { h.update(w, r, true) }

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	uid, _ := auth.UserIDFromContext(r.Context())
	req, err := readUserRequest(w, r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if v := req.validate(!partial); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	if !partial && req.Name == nil {
		empty := ""
		req.Name = &empty
	}
	u, err := h.users.Update(r.Context(), uid, services.UpdateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"email": "already_exists"})
		return
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("update current user")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserResponse(u))
}
