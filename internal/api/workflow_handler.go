package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/repo"
)

// ListWorkflows возвращает список workflows.
// GET /api/v1/workflows?user_id=...&limit=...&offset=...
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.WorkflowFilter{
		UserID: q.Get("user_id"),
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	workflows, err := h.workflows.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowSummary, len(workflows))
	for i := range workflows {
		result[i] = WorkflowSummaryFromDomain(&workflows[i])
	}

	List(w, result, len(result))
}

// CreateWorkflow сохраняет новый workflow.
// POST /api/v1/workflows
//
// Граф валидируется тем же парсером, что и перед запуском:
// невалидный workflow не сохраняется.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	wf := req.toDomain(uuid.New())
	if _, err := engine.Validate(wf, h.nodeTypes); err != nil {
		InvalidWorkflow(w, err)
		return
	}

	now := h.now()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := h.workflows.Create(r.Context(), wf); HandleRepoError(w, h.logger, err, "") {
		return
	}

	Created(w, wf)
}

// GetWorkflow возвращает workflow по ID вместе с графом.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, wf)
}

// UpdateWorkflow заменяет граф и метаданные workflow.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	existing, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	wf := req.toDomain(id)
	wf.UserID = existing.UserID
	if wf.Name == "" {
		wf.Name = existing.Name
	}
	if _, err := engine.Validate(wf, h.nodeTypes); err != nil {
		InvalidWorkflow(w, err)
		return
	}
	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = h.now()

	if err := h.workflows.Update(r.Context(), wf); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, wf)
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if err := h.workflows.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	NoContent(w)
}

// parseIntDefault парсит строку в int с дефолтным значением.
func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
