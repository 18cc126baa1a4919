package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Workflow — сохранённый граф узлов и связей.
//
// Workflow создаётся редактором и для движка неизменяем:
// движок только читает узлы, связи и конфигурацию.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// UserID — владелец workflow. Используется для поиска credentials.
	UserID string `json:"userId,omitempty"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Nodes — узлы графа (порядок не важен).
	Nodes []Node `json:"nodes"`

	// Connections — рёбра графа: данные и порядок выполнения.
	Connections []Connection `json:"connections"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node — отдельный типизированный шаг workflow.
type Node struct {
	// ID — уникальный идентификатор узла в рамках workflow.
	// Используется в плейсхолдерах: {{node_id.output.field}}.
	ID string `json:"id"`

	// Type — тип узла, ключ в реестре исполнителей.
	Type NodeType `json:"type"`

	// Name — имя узла для логов.
	Name string `json:"name,omitempty"`

	// Config — сырая конфигурация с плейсхолдерами.
	// Разрешение всегда создаёт новую карту, Config не изменяется.
	Config map[string]any `json:"config,omitempty"`

	// InputMapping — сырые шаблоны, разрешаемые в пространство имён "input".
	InputMapping map[string]any `json:"inputMapping,omitempty"`

	// RetryConfig — политика повторов для узла.
	RetryConfig *RetryConfig `json:"retryConfig,omitempty"`

	// OnErrorWebhookConfig — webhook, вызываемый после исчерпания попыток.
	OnErrorWebhookConfig *OnErrorWebhookConfig `json:"onErrorWebhookConfig,omitempty"`
}

// DisplayName возвращает идентификатор узла для логов: 'Name' (ID: id).
func (n *Node) DisplayName() string {
	name := n.Name
	if name == "" {
		name = "Unnamed Node"
	}
	return fmt.Sprintf("'%s' (ID: %s)", name, n.ID)
}

// Connection — ребро от выхода одного узла ко входу другого.
type Connection struct {
	ID           string `json:"id,omitempty"`
	SourceNodeID string `json:"sourceNodeId"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetNodeID string `json:"targetNodeId"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// RetryConfig — политика повторных попыток узла.
type RetryConfig struct {
	// Attempts — общее количество попыток (включая первую).
	Attempts int `json:"attempts,omitempty"`

	// DelayMs — задержка перед второй попыткой.
	DelayMs int `json:"delayMs,omitempty"`

	// BackoffFactor — множитель задержки: delayMs * factor^(attempt-1).
	BackoffFactor float64 `json:"backoffFactor,omitempty"`

	// MaxDelayMs — верхняя граница задержки. 0 — без ограничения.
	MaxDelayMs int `json:"maxDelayMs,omitempty"`

	// RetryOnStatusCodes — HTTP статусы, при которых делать retry.
	RetryOnStatusCodes []int `json:"retryOnStatusCodes,omitempty"`

	// RetryOnErrorKeywords — подстроки текста ошибки, при которых делать retry.
	RetryOnErrorKeywords []string `json:"retryOnErrorKeywords,omitempty"`
}

// MaxAttempts возвращает количество попыток, минимум 1.
func (r *RetryConfig) MaxAttempts() int {
	if r == nil || r.Attempts < 1 {
		return 1
	}
	return r.Attempts
}

// OnErrorWebhookConfig — уведомление об окончательной ошибке узла.
type OnErrorWebhookConfig struct {
	// URL — адрес webhook (может содержать плейсхолдеры).
	URL string `json:"url"`

	// Method — HTTP метод. По умолчанию POST.
	Method string `json:"method,omitempty"`

	// Headers — дополнительные заголовки.
	Headers map[string]string `json:"headers,omitempty"`

	// BodyTemplate — шаблон тела. Если задан, заменяет стандартный payload.
	BodyTemplate any `json:"bodyTemplate,omitempty"`

	// IncludeWorkflowData — включать ли снимок data bag в payload.
	IncludeWorkflowData bool `json:"includeWorkflowData,omitempty"`
}

// DecodeWorkflow разбирает документ workflow в формате JSON или YAML.
//
// YAML сначала приводится к JSON, чтобы у обоих форматов были
// одинаковые имена полей и одинаковая семантика чисел.
func DecodeWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if json.Valid(data) {
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("decode workflow json: %w", err)
		}
		return &wf, nil
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode workflow yaml: %w", err)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert workflow yaml: %w", err)
	}
	if err := json.Unmarshal(buf, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &wf, nil
}
