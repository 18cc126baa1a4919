package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/scheduler"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?workflow_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ScheduleFilter{
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}

	if s := q.Get("workflow_id"); s != "" {
		workflowID, err := uuid.Parse(s)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &workflowID
	}

	if s := q.Get("enabled"); s != "" {
		enabled := s == "true"
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}

	List(w, schedules, len(schedules))
}

// CreateSchedule создаёт schedule для узла scheduleTrigger.
// POST /api/v1/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.WorkflowID == uuid.Nil {
		BadRequest(w, "workflowId is required")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), req.WorkflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	node := findNode(wf, req.NodeID)
	if node == nil {
		BadRequest(w, "node "+req.NodeID+" not found in workflow")
		return
	}
	if node.Type.Canonical() != domain.NodeTypeScheduleTrigger {
		InvalidState(w, "node "+req.NodeID+" is not a scheduleTrigger")
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	userID := req.UserID
	if userID == "" {
		userID = wf.UserID
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := h.now()
	sched := &domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: wf.ID,
		NodeID:     req.NodeID,
		UserID:     userID,
		CronExpr:   req.CronExpr,
		Timezone:   timezone,
		Enabled:    enabled,
		Simulation: req.Simulation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := scheduler.Validate(sched); err != nil {
		BadRequest(w, err.Error())
		return
	}

	nextDue, err := scheduler.CalculateNextDue(sched, now)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	sched.NextDueAt = &nextDue

	if err := h.schedules.Create(r.Context(), sched); HandleRepoError(w, h.logger, err, "") {
		return
	}

	Created(w, sched)
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	if err := h.schedules.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
//
// При включении next_due_at пересчитывается от текущего момента,
// пропущенные за время простоя срабатывания не догоняются.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid schedule id")
		return
	}

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	now := h.now()
	if req.Enabled && !sched.Enabled {
		nextDue, err := scheduler.CalculateNextDue(sched, now)
		if err != nil {
			InvalidState(w, err.Error())
			return
		}
		sched.NextDueAt = &nextDue
	}
	sched.Enabled = req.Enabled
	sched.UpdatedAt = now

	if err := h.schedules.Update(r.Context(), sched); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}
