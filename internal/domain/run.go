package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry — запись серверного лога run (ServerLogOutput).
//
// Записи только добавляются, никогда не изменяются.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Type      LogType   `json:"type"`
}

// AttemptRecord — одна попытка выполнения узла.
type AttemptRecord struct {
	Attempt   int           `json:"attempt"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// NodeResult — итог выполнения одного узла.
type NodeResult struct {
	// NodeID — ID узла.
	NodeID string `json:"nodeId"`

	// Type — тип узла.
	Type NodeType `json:"type"`

	// Status — итоговый статус.
	Status NodeStatus `json:"status"`

	// Output — выход узла (то, что записано в data bag).
	Output any `json:"output,omitempty"`

	// Error — текст последней ошибки.
	Error string `json:"error,omitempty"`

	// Reason — причина пропуска узла.
	Reason string `json:"reason,omitempty"`

	// Attempts — все попытки выполнения.
	Attempts []AttemptRecord `json:"attempts,omitempty"`
}

// ExecutionResult — результат выполнения workflow.
//
// Run создаётся когда:
// - Клиент вызывает синхронное выполнение через API/CLI
// - Webhook-триггер или scheduler ставят выполнение в очередь
type ExecutionResult struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowID — какой workflow выполнялся.
	WorkflowID uuid.UUID `json:"workflowId"`

	// UserID — от чьего имени выполнялся run.
	UserID string `json:"userId"`

	// Simulation — режим симуляции (без внешних эффектов).
	Simulation bool `json:"simulation"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Nodes — результаты по узлам.
	Nodes map[string]*NodeResult `json:"nodes"`

	// Data — итоговый снимок data bag.
	Data map[string]any `json:"data,omitempty"`

	// Logs — серверный лог run.
	Logs []LogEntry `json:"logs"`

	// Error — ошибка уровня run (невалидный граф, отмена).
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"createdAt"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *ExecutionResult) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *ExecutionResult) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *ExecutionResult) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkFinished выставляет итоговый статус по результатам узлов.
//
//   - нет упавших узлов → SUCCEEDED
//   - упали все выполнявшиеся узлы → FAILED
//   - иначе → PARTIAL
func (r *ExecutionResult) MarkFinished() {
	now := time.Now()
	r.FinishedAt = &now

	var failed, succeeded int
	for _, n := range r.Nodes {
		switch n.Status {
		case NodeStatusError:
			failed++
		case NodeStatusSuccess:
			succeeded++
		}
	}

	switch {
	case failed == 0:
		r.Status = RunStatusSucceeded
	case succeeded == 0:
		r.Status = RunStatusFailed
	default:
		r.Status = RunStatusPartial
	}
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *ExecutionResult) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *ExecutionResult) MarkCancelled(err string) {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
	r.Error = err
}

// FailedNodes возвращает ID упавших узлов.
func (r *ExecutionResult) FailedNodes() []string {
	var ids []string
	for id, n := range r.Nodes {
		if n.Status == NodeStatusError {
			ids = append(ids, id)
		}
	}
	return ids
}

// ExecutionRequest — запрос на асинхронное выполнение workflow.
//
// Публикуется API (ручной запуск, webhook) и scheduler'ом,
// потребляется worker'ом.
type ExecutionRequest struct {
	// RunID — заранее выделенный ID run (чтобы клиент мог опрашивать статус).
	RunID uuid.UUID `json:"runId"`

	// WorkflowID — какой workflow выполнять.
	WorkflowID uuid.UUID `json:"workflowId"`

	// UserID — от чьего имени.
	UserID string `json:"userId"`

	// Simulation — режим симуляции.
	Simulation bool `json:"simulation"`

	// InitialData — данные активации, ключ — ID узла-триггера.
	InitialData map[string]any `json:"initialData,omitempty"`

	// Source — откуда пришёл запрос: "api", "webhook", "schedule".
	Source string `json:"source"`
}
