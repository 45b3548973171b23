// Package api provides HTTP handlers for the fika API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/shared"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ScheduleGenerator runs one schedule generation.
type ScheduleGenerator interface {
	Generate(ctx context.Context, userID string, day time.Time) (*scheduler.Schedule, error)
}

// Handler provides common handler utilities.
type Handler struct {
	repo            store.Repository
	gen             ScheduleGenerator
	generateTimeout time.Duration
	now             func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, gen ScheduleGenerator, generateTimeout time.Duration) *Handler {
	if generateTimeout <= 0 {
		generateTimeout = 30 * time.Second
	}
	return &Handler{
		repo:            repo,
		gen:             gen,
		generateTimeout: generateTimeout,
		now:             time.Now,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps domain and store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, userID string) {
	switch {
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrTaskNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrRunInProgress):
		Error(w, http.StatusConflict, "schedule_generation_in_progress")
	case errors.Is(err, domain.ErrUnresolvableWindow):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("Request deadline exceeded", "user_id", userID, "error", err)
		Error(w, http.StatusGatewayTimeout, "deadline exceeded")
	case shared.IsConflictError(err):
		slog.Warn("Database busy", "user_id", userID, "error", err)
		w.Header().Set("Retry-After", "1")
		Error(w, http.StatusServiceUnavailable, "database busy, retry")
	default:
		slog.Error("Request failed", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// dayParam parses the "date" query parameter, defaulting to today.
func (h *Handler) dayParam(r *http.Request) (time.Time, error) {
	return domain.ParseDay(r.URL.Query().Get("date"), h.now())
}

func taskIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id")
	}
	return id, nil
}
