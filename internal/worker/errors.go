package worker

import "errors"

// Ошибки воркера.
var (
	// ErrNoConnection — Start вызван без соединения с брокером.
	ErrNoConnection = errors.New("worker requires a broker connection")

	// ErrWorkflowNotFound — workflow из запроса удалён.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInterrupted — run прерван остановкой воркера и будет выполнен заново.
	ErrInterrupted = errors.New("run interrupted by worker shutdown")
)
