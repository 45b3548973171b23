package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/identity"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
)

// ScheduleHandler handles schedule generation, retrieval and scoring.
type ScheduleHandler struct {
	*Handler
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(base *Handler) *ScheduleHandler {
	return &ScheduleHandler{Handler: base}
}

// RegisterRoutes registers schedule routes. generateLimit, when set, wraps
// the generate endpoint.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router, generateLimit func(http.Handler) http.Handler) {
	r.Route("/api/schedule", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/evaluate", h.Evaluate)
		if generateLimit != nil {
			r.With(generateLimit).Post("/generate", h.Generate)
		} else {
			r.Post("/generate", h.Generate)
		}
	})
}

// Generate builds, stores and scores the schedule of the requested day.
func (h *ScheduleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	day, err := h.dayParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if user := identity.UserFromContext(r.Context()); user != nil && !user.HasPreferences() {
		Error(w, http.StatusUnprocessableEntity, "preferences_required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.generateTimeout)
	defer cancel()

	sched, err := h.gen.Generate(ctx, userID, day)
	if err != nil {
		writeStoreError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, sched)
}

// Get returns the stored entries of the requested day.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	day, err := h.dayParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.repo.ListSchedule(r.Context(), userID, day)
	if err != nil {
		writeStoreError(w, err, userID)
		return
	}
	if entries == nil {
		entries = []domain.ScheduleEntry{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"date":    day.Format(domain.DateLayout),
		"entries": entries,
	})
}

type evaluateRequest struct {
	Entries []domain.ScheduleEntry `json:"entries"`
	// Preferences overrides the stored preferences when set.
	Preferences *domain.UserPreferences `json:"preferences,omitempty"`
}

// Evaluate scores a posted entry list against the user's preferences.
func (h *ScheduleHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	prefs := user.Preferences
	if req.Preferences != nil {
		if err := req.Preferences.Validate(); err != nil {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		prefs = *req.Preferences
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"reward":           scheduler.Evaluate(req.Entries, prefs),
		"average_duration": scheduler.AverageDuration(req.Entries),
		"entries":          len(req.Entries),
	})
}
