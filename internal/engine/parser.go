package engine

import (
	"fmt"

	"github.com/shaiso/Flowline/internal/domain"
)

// NodeTypeSet — набор типов узлов, для которых есть исполнитель.
// Реализуется реестром исполнителей.
type NodeTypeSet interface {
	Has(t domain.NodeType) bool
}

// Validate выполняет полную валидацию Workflow перед запуском.
//
// Проверяет:
// - Наличие узлов
// - Уникальность и непустоту ID узлов
// - Наличие исполнителя для каждого типа
// - Политики retry и on-error webhook
// - Связи (ссылки на существующие узлы, без петель и циклов — делегируется DAG)
//
// Возвращает построенный DAG, чтобы не строить его повторно.
func Validate(wf *domain.Workflow, types NodeTypeSet) (*DAG, error) {
	if wf == nil || len(wf.Nodes) == 0 {
		return nil, ErrEmptyNodes
	}

	for i := range wf.Nodes {
		if err := ValidateNode(&wf.Nodes[i], types); err != nil {
			return nil, err
		}
	}

	return BuildDAG(wf)
}

// ValidateNode валидирует один узел.
func ValidateNode(node *domain.Node, types NodeTypeSet) error {
	if node.ID == "" {
		return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
	}

	if node.Type == "" {
		return NewValidationError(node.ID, "type", "node has empty type", ErrUnknownNodeType)
	}
	if types != nil && !types.Has(node.Type.Canonical()) {
		return NewValidationError(node.ID, "type",
			fmt.Sprintf("unknown node type: %s", node.Type), ErrUnknownNodeType)
	}

	if rc := node.RetryConfig; rc != nil {
		if rc.Attempts < 0 || rc.DelayMs < 0 || rc.MaxDelayMs < 0 || rc.BackoffFactor < 0 {
			return NewValidationError(node.ID, "retryConfig",
				"retry config values must not be negative", nil)
		}
	}

	if wh := node.OnErrorWebhookConfig; wh != nil && wh.URL == "" {
		return NewValidationError(node.ID, "onErrorWebhookConfig",
			"on-error webhook has empty url", nil)
	}

	return nil
}
