package nodes

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/shaiso/Flowline/internal/domain"
)

// Registry — реестр исполнителей узлов.
//
// Позволяет регистрировать и получать реализации Executor по типу.
// Потокобезопасен. Реализует engine.NodeTypeSet, поэтому workflow
// с неизвестным типом отклоняется до начала выполнения.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.NodeType]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.NodeType]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными исполнителями.
// client используется httpRequest и интеграциями, если в ExecutionContext не задан свой.
func DefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()

	// Триггеры
	r.Register(NewTriggerExecutor(domain.NodeTypeWebhookTrigger))
	r.Register(NewTriggerExecutor(domain.NodeTypeScheduleTrigger))

	// Действия
	r.Register(NewHTTPExecutor(client))
	r.Register(NewAITaskExecutor())
	r.Register(NewGenerateImageExecutor())
	r.Register(NewParseJSONExecutor())
	r.Register(NewSendEmailExecutor())
	r.Register(NewDBQueryExecutor())
	r.Register(NewLogMessageExecutor())

	// Логика и утилиты
	r.Register(NewConditionalExecutor())
	r.Register(NewTextExecutor(domain.NodeTypeToUpperCase))
	r.Register(NewTextExecutor(domain.NodeTypeToLowerCase))
	r.Register(NewTextExecutor(domain.NodeTypeConcatenateStrings))
	r.Register(NewTextExecutor(domain.NodeTypeStringSplit))
	r.Register(NewFormatDateExecutor())
	r.Register(NewDelayExecutor())

	// Интеграции
	r.Register(NewOpenAIChatExecutor())
	r.Register(NewSlackExecutor(client))
	r.Register(NewGitHubExecutor(client))

	return r
}

// Register регистрирует исполнитель в реестре.
// Если исполнитель с таким типом уже существует, он будет перезаписан.
func (r *Registry) Register(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Type()] = exec
}

// Get возвращает исполнитель по типу (с учётом алиасов).
// Возвращает ErrExecutorNotFound, если исполнитель не найден.
func (r *Registry) Get(nodeType domain.NodeType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[nodeType.Canonical()]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, nodeType)
	}

	return exec, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(nodeType domain.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[nodeType.Canonical()]
	return exists
}

// Types возвращает список всех зарегистрированных типов.
func (r *Registry) Types() []domain.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count возвращает количество зарегистрированных исполнителей.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// Unregister удаляет исполнитель из реестра.
func (r *Registry) Unregister(nodeType domain.NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, nodeType)
}
