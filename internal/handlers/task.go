package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/internal/logger"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

// TaskHandler provides HTTP handlers for the caller's tasks.
type TaskHandler struct {
	tasks *services.TaskService
}

// NewTaskHandler constructs a handler with the provided service.
func NewTaskHandler(tasks *services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// TaskRouter registers task routes on the given router. Every route requires auth.
func TaskRouter(r chi.Router, tasks *services.TaskService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewTaskHandler(tasks)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTasks)
	r.Post("/", handler.CreateTask)
	r.Post("/export", handler.ExportTasks)
	r.Get("/exports", handler.ListExports)
	r.Get("/exports/{name}", handler.DownloadExport)
	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/", handler.GetTask)
		r.Put("/", handler.UpdateTask)
		r.Delete("/", handler.DeleteTask)
	})
}

// TaskRequest is the body of create and update. The completion flag is
// accepted as either is_completed or isCompleted.
type TaskRequest struct {
	ID          *int
	Title       string
	Description string
	IsCompleted bool
}

func (t *TaskRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID               *int    `json:"id"`
		Title            *string `json:"title"`
		Description      *string `json:"description"`
		IsCompleted      *bool   `json:"is_completed"`
		IsCompletedCamel *bool   `json:"isCompleted"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = TaskRequest{ID: raw.ID}
	if raw.Title != nil {
		t.Title = *raw.Title
	}
	if raw.Description != nil {
		t.Description = *raw.Description
	}
	switch {
	case raw.IsCompleted != nil:
		t.IsCompleted = *raw.IsCompleted
	case raw.IsCompletedCamel != nil:
		t.IsCompleted = *raw.IsCompletedCamel
	}
	return nil
}

func (t TaskRequest) input() types.TaskInput {
	return types.TaskInput{
		Title:       t.Title,
		Description: t.Description,
		IsCompleted: t.IsCompleted,
	}
}

// ListTasks returns the caller's tasks ordered by id.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tasks, err := h.tasks.List(r.Context(), identity.UserID)
	if err != nil {
		writeInternalError(w, r, "failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []types.Task{}
	}

	writeJSON(w, http.StatusOK, tasks)
}

// GetTask returns a single task owned by the caller.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.Get(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeInternalError(w, r, "failed to fetch task", err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// CreateTask stores a new task for the caller and points Location at it.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.Create(r.Context(), identity.UserID, req.input())
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInternalError(w, r, "failed to create task", err)
		return
	}

	w.Header().Set("Location", "/tasks/"+strconv.Itoa(task.ID))
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask overwrites a task owned by the caller. A body id, when present,
// must match the path.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID != nil && *req.ID != id {
		writeError(w, http.StatusBadRequest, "task id mismatch")
		return
	}

	if _, err := h.tasks.Update(r.Context(), identity.UserID, id, req.input()); err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "task not found")
		default:
			writeInternalError(w, r, "failed to update task", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteTask removes a task owned by the caller.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "taskID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tasks.Delete(r.Context(), identity.UserID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeInternalError(w, r, "failed to delete task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportTasks snapshots the caller's tasks into object storage.
func (h *TaskHandler) ExportTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	info, err := h.tasks.Export(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, services.ErrExportsDisabled) {
			writeError(w, http.StatusServiceUnavailable, "exports are disabled")
			return
		}
		writeInternalError(w, r, "failed to export tasks", err)
		return
	}

	w.Header().Set("Location", "/tasks/exports/"+info.Name)
	writeJSON(w, http.StatusCreated, info)
}

// ListExports returns the caller's exports, newest first.
func (h *TaskHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	exports, err := h.tasks.ListExports(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, services.ErrExportsDisabled) {
			writeError(w, http.StatusServiceUnavailable, "exports are disabled")
			return
		}
		writeInternalError(w, r, "failed to list exports", err)
		return
	}

	writeJSON(w, http.StatusOK, exports)
}

// DownloadExport streams one of the caller's exports.
func (h *TaskHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	name := chi.URLParam(r, "name")

	body, err := h.tasks.OpenExport(r.Context(), identity.UserID, name)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExportsDisabled):
			writeError(w, http.StatusServiceUnavailable, "exports are disabled")
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "export not found")
		default:
			writeInternalError(w, r, "failed to open export", err)
		}
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks-`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Get().Warn("export download interrupted", "name", name, "error", err)
	}
}
