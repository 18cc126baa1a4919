package nodes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// Ошибки исполнителей.
var (
	// ErrExecutorNotFound — для типа узла нет исполнителя.
	ErrExecutorNotFound = errors.New("node executor not found")

	// ErrInvalidConfig — невалидная конфигурация узла.
	ErrInvalidConfig = errors.New("invalid node config")

	// ErrNodeCancelled — выполнение узла отменено.
	ErrNodeCancelled = errors.New("node execution cancelled")

	// ErrProviderNotConfigured — внешний провайдер не подключён к ExecutionContext.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrSimulatedFailure — сбой, запрошенный конфигурацией симуляции.
	ErrSimulatedFailure = errors.New("simulated failure")
)

// Output — выход узла, записывается в data bag.
type Output = map[string]any

// Executor — исполнитель одного типа узлов.
//
// Каждый тип узла (httpRequest, aiTask, dbQuery, ...) реализует этот интерфейс.
// В режиме симуляции исполнитель не делает внешних вызовов
// и пишет в лог строку с SIMULATION.
type Executor interface {
	// Type возвращает тип узла.
	Type() domain.NodeType

	// Execute выполняет узел и возвращает его выход.
	// Исполнитель должен уважать ctx.Done().
	Execute(ctx context.Context, req *Request) (Output, error)
}

// ExecutionContext — окружение одного run. Создаётся один раз, не изменяется.
type ExecutionContext struct {
	// UserID — пользователь, от имени которого идёт run.
	UserID string

	// Simulation — режим симуляции: никаких внешних эффектов.
	Simulation bool

	// DB — пулы соединений для dbQuery.
	DB DBPools

	// Chat — модель для aiTask.
	Chat ChatModel

	// Images — генератор изображений для generateImage.
	Images ImageGenerator

	// Completions — клиент chat completions для openAiChatCompletion.
	Completions ChatCompleter

	// Mail — SMTP транспорт для sendEmail.
	Mail Mailer

	// HTTPClient — клиент для httpRequest и интеграций. nil — клиент исполнителя.
	HTTPClient *http.Client
}

// Request — входные данные для выполнения узла.
type Request struct {
	// Node — определение узла.
	Node *domain.Node

	// Config — разрешённая конфигурация (с ключом "input").
	Config map[string]any

	// Exec — окружение run.
	Exec *ExecutionContext

	// Bag — data bag run (только чтение).
	Bag *engine.DataBag

	// Logs — серверный лог run.
	Logs *engine.LogSequence
}

// Simulation возвращает true в режиме симуляции.
func (r *Request) Simulation() bool {
	return r.Exec != nil && r.Exec.Simulation
}

// UserID возвращает пользователя run.
func (r *Request) UserID() string {
	if r.Exec == nil {
		return ""
	}
	return r.Exec.UserID
}

// NodeID возвращает ID узла.
func (r *Request) NodeID() string {
	if r.Node == nil {
		return ""
	}
	return r.Node.ID
}

// Logf пишет info-запись с префиксом "[NODE TYPE]".
// В режиме симуляции добавляет "SIMULATION: ".
func (r *Request) Logf(format string, args ...any) {
	r.Logs.Info("%s%s", r.prefix(), fmt.Sprintf(format, args...))
}

// Errorf пишет error-запись с префиксом "[NODE TYPE]".
func (r *Request) Errorf(format string, args ...any) {
	r.Logs.Error("%s%s", r.prefix(), fmt.Sprintf(format, args...))
}

func (r *Request) prefix() string {
	typ := "UNKNOWN"
	if r.Node != nil {
		typ = strings.ToUpper(string(r.Node.Type.Canonical()))
	}
	p := "[NODE " + typ + "] "
	if r.Simulation() {
		p += "SIMULATION: "
	}
	return p
}

// Display возвращает имя узла для логов: 'Name' (ID: id).
func (r *Request) Display() string {
	if r.Node == nil {
		return "'Unnamed Node'"
	}
	return r.Node.DisplayName()
}

// invalidConfig создаёт ошибку конфигурации узла.
func invalidConfig(typ domain.NodeType, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, typ, fmt.Sprintf(format, args...))
}

// cancelled оборачивает ошибку контекста.
func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrNodeCancelled, ctx.Err())
}

// simulatedOr возвращает первое непустое значение из simulated-полей конфигурации.
func simulatedOr(config map[string]any, fallback any, keys ...string) any {
	for _, k := range keys {
		if v, ok := config[k]; ok && v != nil {
			return v
		}
	}
	return fallback
}
