package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/repo"
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?workflow_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.RunFilter{
		Status: domain.RunStatus(q.Get("status")),
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

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunSummary, len(runs))
	for i := range runs {
		result[i] = RunSummaryFromDomain(&runs[i])
	}

	List(w, result, len(result))
}

// GetRun возвращает run по ID с результатами узлов и логом.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, run)
}

// GetRunLogs возвращает серверный лог run начиная со смещения.
// GET /api/v1/runs/{id}/logs?from=N
//
// Пока run выполняется, записи читаются из живого лога (Redis).
// Завершённый run отдаёт сохранённый лог.
func (h *Handler) GetRunLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}
	from := parseIntDefault(r.URL.Query().Get("from"), 0)

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if !run.IsFinished() && h.liveLog != nil {
		tail, err := h.liveLog.Read(r.Context(), id, int64(from))
		if err == nil {
			Success(w, LogsResponse{
				Entries: tail.Entries,
				Next:    tail.Next,
				Done:    tail.Done,
				Status:  run.Status,
			})
			return
		}
		h.logger.Warn("failed to read live log, falling back to stored log", "run_id", id, "error", err)
	}

	entries := []domain.LogEntry{}
	if from < len(run.Logs) {
		entries = run.Logs[from:]
	}
	Success(w, LogsResponse{
		Entries: entries,
		Next:    int64(from + len(entries)),
		Done:    run.IsFinished(),
		Status:  run.Status,
	})
}
