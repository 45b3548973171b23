package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/makenakalei/fika-scheduling/internal/domain"
	"github.com/makenakalei/fika-scheduling/internal/identity"
)

// TaskHandler handles task endpoints.
type TaskHandler struct {
	*Handler
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(base *Handler) *TaskHandler {
	return &TaskHandler{Handler: base}
}

// RegisterRoutes registers task routes.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/{id}/archive", h.Archive)
		r.Post("/{id}/stress", h.LogStress)
	})
}

// taskRequest accepts timestamps in any layout domain.ParseTimestamp understands.
type taskRequest struct {
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	EstimatedTime int             `json:"estimated_time"`
	Deadline      string          `json:"deadline"`
	FixedTime     bool            `json:"fixed_time"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	Priority      domain.Priority `json:"priority"`
}

func (req *taskRequest) toTask(userID string) (*domain.Task, error) {
	task := &domain.Task{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Category:      req.Category,
		Description:   req.Description,
		EstimatedTime: req.EstimatedTime,
		FixedTime:     req.FixedTime,
		Priority:      req.Priority,
	}
	var err error
	if task.Deadline, err = optionalTimestamp(req.Deadline); err != nil {
		return nil, err
	}
	if task.StartTime, err = optionalTimestamp(req.StartTime); err != nil {
		return nil, err
	}
	if task.EndTime, err = optionalTimestamp(req.EndTime); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

func optionalTimestamp(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the user's tasks. Pass ?archived=true to include archived ones.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	includeArchived := r.URL.Query().Get("archived") == "true"

	tasks, err := h.repo.ListTasks(r.Context(), userID, includeArchived)
	if err != nil {
		writeStoreError(w, err, userID)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// Create stores a new task for the user.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := req.toTask(userID)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	task.CreatedAt = h.now()

	id, err := h.repo.CreateTask(r.Context(), task)
	if err != nil {
		writeStoreError(w, err, userID)
		return
	}
	task.ID = id
	slog.Info("Task created", "user_id", userID, "task_id", id, "fixed", task.FixedTime)
	JSON(w, http.StatusCreated, task)
}

// Archive removes a task from future schedules.
func (h *TaskHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	id, err := taskIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.repo.ArchiveTask(r.Context(), userID, id); err != nil {
		writeStoreError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"task_id": id, "archived": true})
}

type stressRequest struct {
	Stress int `json:"stress"`
}

// LogStress records the stress the user reported for a task.
func (h *TaskHandler) LogStress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	id, err := taskIDParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Stress < 0 || req.Stress > domain.MaxStressLevel {
		Error(w, http.StatusBadRequest, "stress must be between 0 and 10")
		return
	}
	if err := h.repo.LogStressEntry(r.Context(), userID, id, req.Stress); err != nil {
		writeStoreError(w, err, userID)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"task_id": id, "stress": req.Stress})
}
