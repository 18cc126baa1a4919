package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/orchestrator"
)

// maxWebhookBody — предел тела входящего webhook.
const maxWebhookBody = 1 << 20

// ExecuteWorkflow синхронно выполняет переданный workflow.
// POST /api/v1/executions
//
// Ответ — полный ExecutionResult. Ошибки узлов и невалидный граф
// остаются данными результата (status FAILED/PARTIAL), а не HTTP-ошибкой.
// Run сохраняется в историю в любом случае.
func (h *Handler) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Workflow == nil {
		BadRequest(w, "workflow is required")
		return
	}

	ctx := r.Context()
	wf := req.Workflow
	userID := req.UserID
	if userID == "" {
		userID = wf.UserID
	}

	opts := orchestrator.ExecuteOptions{
		RunID:       uuid.New(),
		UserID:      userID,
		Simulation:  req.Simulation,
		InitialData: req.InitialData,
	}

	var sink LiveSink
	if h.openLog != nil {
		// RUNNING-запись до старта: клиент может читать /runs/{id}/logs.
		pending := &domain.ExecutionResult{
			ID:         opts.RunID,
			WorkflowID: wf.ID,
			UserID:     userID,
			Simulation: req.Simulation,
			Nodes:      map[string]*domain.NodeResult{},
			CreatedAt:  h.now(),
		}
		pending.MarkRunning()
		if err := h.save(ctx, pending); err != nil {
			h.logger.Warn("failed to save running run", "run_id", opts.RunID, "error", err)
		}

		sink = h.openLog(opts.RunID)
		opts.LogSinks = []engine.LogSink{sink}
	}

	result, err := h.executor.Execute(ctx, wf, opts)

	if sink != nil {
		if cerr := sink.Close(context.WithoutCancel(ctx)); cerr != nil {
			h.logger.Warn("failed to close live log", "run_id", opts.RunID, "error", cerr)
		}
	}

	if result == nil {
		InternalError(w, h.logger, err)
		return
	}
	if err != nil && !errors.Is(err, orchestrator.ErrInvalidWorkflow) && !errors.Is(err, orchestrator.ErrRunCancelled) {
		h.logger.Warn("execution returned error", "run_id", result.ID, "error", err)
	}

	if err := h.save(ctx, result); err != nil {
		h.logger.Error("failed to save run", "run_id", result.ID, "error", err)
	}

	Success(w, result)
}

// EnqueueWorkflow ставит выполнение сохранённого workflow в очередь.
// POST /api/v1/workflows/{id}/execute
//
// Тело необязательно. Ответ 202 с ID run, статус опрашивается
// через GET /api/v1/runs/{id}.
func (h *Handler) EnqueueWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}
	if h.publisher == nil {
		ServiceUnavailable(w, "execution queue is not configured")
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = wf.UserID
	}

	h.enqueue(w, r, domain.ExecutionRequest{
		WorkflowID:  wf.ID,
		UserID:      userID,
		Simulation:  req.Simulation,
		InitialData: req.InitialData,
		Source:      "api",
	})
}

// TriggerWebhook активирует узел webhookTrigger входящим запросом.
// POST /api/v1/hooks/{workflowID}/{nodeID}
//
// Активация {triggered, requestBody, requestHeaders, requestQuery}
// передаётся узлу через initialData. JSON-тело разбирается,
// любое другое передаётся строкой.
func (h *Handler) TriggerWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(r.PathValue("workflowID"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}
	nodeID := r.PathValue("nodeID")

	if h.publisher == nil {
		ServiceUnavailable(w, "execution queue is not configured")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	node := findNode(wf, nodeID)
	if node == nil {
		NotFound(w, "trigger node not found")
		return
	}
	if node.Type.Canonical() != domain.NodeTypeWebhookTrigger {
		InvalidState(w, "node "+nodeID+" is not a webhookTrigger")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		BadRequest(w, "request body too large")
		return
	}

	activation := map[string]any{
		"triggered":      true,
		"requestBody":    webhookBody(body),
		"requestHeaders": flatten(r.Header, true),
		"requestQuery":   flatten(r.URL.Query(), false),
	}

	h.enqueue(w, r, domain.ExecutionRequest{
		WorkflowID:  wf.ID,
		UserID:      wf.UserID,
		InitialData: map[string]any{nodeID: activation},
		Source:      "webhook",
	})
}

// enqueue создаёт QUEUED run и публикует execution.requested.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, req domain.ExecutionRequest) {
	ctx := r.Context()
	req.RunID = uuid.New()

	if err := h.runs.CreateQueued(ctx, req); HandleRepoError(w, h.logger, err, "") {
		return
	}

	if err := h.publisher.PublishExecutionRequested(ctx, req); err != nil {
		h.logger.Error("failed to publish execution request", "run_id", req.RunID, "error", err)

		// Без сообщения run навсегда остался бы QUEUED.
		run := &domain.ExecutionResult{
			ID:         req.RunID,
			WorkflowID: req.WorkflowID,
			UserID:     req.UserID,
			Simulation: req.Simulation,
			Nodes:      map[string]*domain.NodeResult{},
			CreatedAt:  h.now(),
		}
		run.MarkFailed("enqueue failed: " + err.Error())
		if serr := h.save(ctx, run); serr != nil {
			h.logger.Error("failed to mark run failed", "run_id", req.RunID, "error", serr)
		}

		ServiceUnavailable(w, "failed to enqueue execution")
		return
	}

	h.logger.Info("execution enqueued",
		"run_id", req.RunID,
		"workflow_id", req.WorkflowID,
		"source", req.Source,
	)

	Accepted(w, EnqueueResponse{
		RunID:      req.RunID,
		WorkflowID: req.WorkflowID,
		Status:     domain.RunStatusQueued,
	})
}

// save сохраняет run, переживая отмену контекста запроса.
func (h *Handler) save(ctx context.Context, run *domain.ExecutionResult) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.saveTimeout)
	defer cancel()
	return h.runs.Save(ctx, run)
}

func findNode(wf *domain.Workflow, id string) *domain.Node {
	for i := range wf.Nodes {
		if wf.Nodes[i].ID == id {
			return &wf.Nodes[i]
		}
	}
	return nil
}

func webhookBody(body []byte) any {
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	return string(body)
}

// flatten оставляет первое значение каждого заголовка или параметра.
func flatten(values map[string][]string, lowerKeys bool) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		if lowerKeys {
			k = strings.ToLower(k)
		}
		out[k] = v[0]
	}
	return out
}
