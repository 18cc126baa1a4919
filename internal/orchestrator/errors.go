package orchestrator

import "errors"

// Ошибки движка.
var (
	// ErrInvalidWorkflow — workflow не прошёл валидацию (граф, типы узлов).
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrRunCancelled — run отменён через контекст.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunAlreadyActive — run с таким ID уже выполняется.
	ErrRunAlreadyActive = errors.New("run already being processed")
)
