package domain

// RunStatus — итоговый статус выполнения workflow.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ PARTIAL   (часть узлов упала, независимые ветки отработали)
//	        ↘ FAILED    (граф невалиден или все выполненные узлы упали)
//	        ↘ CANCELLED (контекст run отменён)
type RunStatus string

const (
	// RunStatusQueued — run поставлен в очередь, воркер ещё не взял его.
	RunStatusQueued RunStatus = "QUEUED"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все узлы завершились без ошибок.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusPartial — есть упавшие узлы, но часть графа выполнена.
	RunStatusPartial RunStatus = "PARTIAL"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus — статус узла в рамках одного run.
//
// Жизненный цикл:
//
//	pending → running → success
//	                  ↘ error (после всех попыток)
//	pending → skipped (упала зависимость или _flow_run_condition ложно)
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// IsTerminal возвращает true, если узел больше не будет выполняться.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusSuccess, NodeStatusError, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// LogType — тип записи серверного лога.
type LogType string

const (
	LogTypeInfo    LogType = "info"
	LogTypeError   LogType = "error"
	LogTypeSuccess LogType = "success"
)
