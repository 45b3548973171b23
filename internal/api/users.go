package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/identity"
)

// UserHandler handles user and preference endpoints.
type UserHandler struct {
	*Handler
}

// NewUserHandler creates a new user handler.
func NewUserHandler(base *Handler) *UserHandler {
	return &UserHandler{Handler: base}
}

// RegisterPublicRoutes registers routes that do not require a known user.
func (h *UserHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/api/users", h.CreateUser)
}

// RegisterRoutes registers user routes behind the identity middleware.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Put("/api/preferences", h.UpdatePreferences)
}

type createUserRequest struct {
	UserID      string                 `json:"user_id"`
	Username    string                 `json:"username"`
	Preferences domain.UserPreferences `json:"preferences"`
}

// CreateUser creates or updates a user together with their preferences.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if !identity.ValidUserID(req.UserID) {
		Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if err := req.Preferences.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	existing, err := h.repo.GetUser(ctx, req.UserID)
	if err != nil {
		writeStoreError(w, err, req.UserID)
		return
	}

	now := h.now()
	user := &domain.User{
		UserID:      req.UserID,
		Username:    strings.TrimSpace(req.Username),
		Preferences: req.Preferences,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if user.Username == "" {
		user.Username = req.UserID
	}
	status := http.StatusCreated
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	}

	if err := h.repo.UpsertUser(ctx, user); err != nil {
		writeStoreError(w, err, req.UserID)
		return
	}
	slog.Info("User saved", "user_id", user.UserID, "created", existing == nil)
	JSON(w, status, user)
}

// GetMe returns the current user's information.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":         user.UserID,
		"username":        user.Username,
		"preferences":     user.Preferences,
		"has_preferences": user.HasPreferences(),
	})
}

// UpdatePreferences replaces the current user's preferences.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var prefs domain.UserPreferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := prefs.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdatePreferences(r.Context(), userID, prefs); err != nil {
		writeStoreError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, prefs)
}
