package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
)

// Workflow DTOs

// WorkflowRequest — запрос на создание или замену workflow.
type WorkflowRequest struct {
	UserID      string              `json:"userId,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Nodes       []domain.Node       `json:"nodes"`
	Connections []domain.Connection `json:"connections"`
}

// toDomain собирает domain.Workflow из запроса.
func (r *WorkflowRequest) toDomain(id uuid.UUID) *domain.Workflow {
	return &domain.Workflow{
		ID:          id,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		Nodes:       r.Nodes,
		Connections: r.Connections,
	}
}

// WorkflowSummary — workflow в списке, без графа.
type WorkflowSummary struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       int       `json:"nodes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WorkflowSummaryFromDomain конвертирует domain.Workflow в WorkflowSummary.
func WorkflowSummaryFromDomain(wf *domain.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:          wf.ID,
		UserID:      wf.UserID,
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       len(wf.Nodes),
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// Execution DTOs

// ExecuteRequest — синхронное выполнение переданного workflow.
// POST /api/v1/executions
type ExecuteRequest struct {
	Workflow    *domain.Workflow `json:"workflow"`
	UserID      string           `json:"userId,omitempty"`
	Simulation  bool             `json:"simulation"`
	InitialData map[string]any   `json:"initialData,omitempty"`
}

// EnqueueRequest — асинхронный запуск сохранённого workflow.
// POST /api/v1/workflows/{id}/execute
type EnqueueRequest struct {
	UserID      string         `json:"userId,omitempty"`
	Simulation  bool           `json:"simulation"`
	InitialData map[string]any `json:"initialData,omitempty"`
}

// EnqueueResponse — ответ на постановку run в очередь.
type EnqueueResponse struct {
	RunID      uuid.UUID        `json:"runId"`
	WorkflowID uuid.UUID        `json:"workflowId"`
	Status     domain.RunStatus `json:"status"`
}

// Run DTOs

// RunSummary — run в списке, без результатов узлов и лога.
type RunSummary struct {
	ID         uuid.UUID        `json:"id"`
	WorkflowID uuid.UUID        `json:"workflowId"`
	UserID     string           `json:"userId,omitempty"`
	Simulation bool             `json:"simulation"`
	Status     domain.RunStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// RunSummaryFromDomain конвертирует domain.ExecutionResult в RunSummary.
func RunSummaryFromDomain(r *domain.ExecutionResult) RunSummary {
	return RunSummary{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		UserID:     r.UserID,
		Simulation: r.Simulation,
		Status:     r.Status,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// LogsResponse — часть серверного лога run.
type LogsResponse struct {
	Entries []domain.LogEntry `json:"entries"`
	Next    int64             `json:"next"`
	Done    bool              `json:"done"`
	Status  domain.RunStatus  `json:"status"`
}

// Schedule DTOs

// CreateScheduleRequest — запрос на создание schedule.
type CreateScheduleRequest struct {
	WorkflowID uuid.UUID `json:"workflowId"`
	NodeID     string    `json:"nodeId"`
	UserID     string    `json:"userId,omitempty"`
	CronExpr   string    `json:"cronExpr"`
	Timezone   string    `json:"timezone,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
	Simulation bool      `json:"simulation,omitempty"`
}

// SetEnabledRequest — запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// Credential DTOs

// PutCredentialRequest — сохранение секрета.
type PutCredentialRequest struct {
	Value string `json:"value"`
}
