package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/service"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
	"github.com/sogos/pixelpipe/internal/infrastructure/config"
)

// TaskHandler exposes the repository API over JSON for the GUI.
type TaskHandler struct {
	repo     repository.TaskRepository
	settings *config.Settings
	logger   service.Logger
}

func NewTaskHandler(repo repository.TaskRepository, settings *config.Settings, logger service.Logger) *TaskHandler {
	return &TaskHandler{repo: repo, settings: settings, logger: logger}
}

// taskTreeRequest mirrors entity.TaskTree on the wire. Input leaves carry
// "data"; interior nodes carry parents.
type taskTreeRequest struct {
	Params  valueobject.JobType `json:"params"`
	Data    *string             `json:"data,omitempty"`
	Parents []taskTreeRequest   `json:"parents,omitempty"`
}

func (req *taskTreeRequest) toTree() *entity.TaskTree {
	if req.Params.Kind == valueobject.JobKindInput {
		path := ""
		if req.Data != nil {
			path = *req.Data
		}
		return entity.NewInputLeaf(path)
	}

	parents := make([]*entity.TaskTree, 0, len(req.Parents))
	for i := range req.Parents {
		parents = append(parents, req.Parents[i].toTree())
	}
	return entity.NewTaskTree(req.Params, parents...)
}

// taskResponse is the wire form of one task snapshot.
type taskResponse struct {
	RowID     int64               `json:"row_id"`
	TaskID    int64               `json:"task_id"`
	Status    string              `json:"status"`
	Timestamp int64               `json:"timestamp"`
	Data      *string             `json:"data,omitempty"`
	Params    valueobject.JobType `json:"params"`
}

func toTaskResponse(task entity.Task) taskResponse {
	return taskResponse{
		RowID:     task.RowID,
		TaskID:    task.TaskID,
		Status:    task.Status.String(),
		Timestamp: task.Timestamp,
		Data:      task.Data,
		Params:    task.Params,
	}
}

func toTaskResponses(tasks []entity.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toTaskResponse(task))
	}
	return out
}

// SubmitTree handles POST /api/tasks.
func (h *TaskHandler) SubmitTree(w http.ResponseWriter, r *http.Request) {
	var req taskTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tree := req.toTree()
	if err := tree.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.InsertTaskTree(r.Context(), tree); err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": tree.Size()})
}

// SubmitInput handles POST /api/tasks/input.
func (h *TaskHandler) SubmitInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	taskID, err := h.repo.InsertInputLeaf(r.Context(), req.Path)
	if err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"task_id": taskID})
}

// ListTasks handles GET /api/tasks.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.GetAllTasks(r.Context())
	if err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// ListRunnable handles GET /api/tasks/runnable.
func (h *TaskHandler) ListRunnable(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.repo.GetRunnableTasks(r.Context())
	if err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.repo.GetLastTaskState(r.Context(), taskID)
	if err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(*task))
}

// GetParents handles GET /api/tasks/{id}/parents.
func (h *TaskHandler) GetParents(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	parents, err := h.repo.GetParentTasks(r.Context(), taskID)
	if err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponses(parents))
}

// CompleteTask handles POST /api/tasks/{id}/completed.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		OutputPath string `json:"output_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OutputPath == "" {
		writeError(w, http.StatusBadRequest, "output_path is required")
		return
	}
	if err := h.repo.MarkTaskCompleted(r.Context(), taskID, req.OutputPath); err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FailTask handles POST /api/tasks/{id}/failed.
func (h *TaskHandler) FailTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.repo.MarkTaskFailed(r.Context(), taskID); err != nil {
		h.writeRepositoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings.
func (h *TaskHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Snapshot())
}

// UpdateSettings handles PUT /api/settings. Partial updates; omitted
// fields keep their values.
func (h *TaskHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update config.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.settings.Apply(update)
	writeJSON(w, http.StatusOK, h.settings.Snapshot())
}

func (h *TaskHandler) writeRepositoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrSerialization):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
