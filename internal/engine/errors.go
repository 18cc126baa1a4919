package engine

import "errors"

// Ошибки валидации Workflow.
var (
	// ErrEmptyNodes — workflow не содержит узлов.
	ErrEmptyNodes = errors.New("workflow has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeType — для типа узла нет исполнителя.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrDanglingConnection — связь ссылается на несуществующий узел.
	ErrDanglingConnection = errors.New("connection references unknown node")

	// ErrCyclicDependency — обнаружен цикл в связях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — связь узла с самим собой.
	ErrSelfDependency = errors.New("node connected to itself")
)

// Ошибки data bag.
var (
	// ErrOutputAlreadyWritten — выход узла уже записан в этом run.
	ErrOutputAlreadyWritten = errors.New("node output already written")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
