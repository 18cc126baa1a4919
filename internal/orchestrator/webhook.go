package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// Webhook delivery results for metrics.
const (
	webhookSent      = "sent"
	webhookFailed    = "failed"
	webhookSimulated = "simulated"
)

// errorPayload — стандартное тело on-error webhook.
type errorPayload struct {
	Error        string         `json:"error"`
	NodeID       string         `json:"nodeId"`
	NodeName     string         `json:"nodeName"`
	Timestamp    string         `json:"timestamp"`
	WorkflowData map[string]any `json:"workflowData,omitempty"`
}

// notifyError отправляет on-error webhook после исчерпания попыток.
//
// Результат только пишется в лог: webhook не повторяется и не меняет
// итог узла. URL, заголовки и bodyTemplate разрешаются с контекстом
// ошибки: failed_node_id, failed_node_name, error_message, timestamp,
// workflow_data_snapshot_json.
func (e *Engine) notifyError(ctx context.Context, rc *runContext, node *domain.Node, hook *domain.OnErrorWebhookConfig, nodeErr error) {
	timestamp := e.now().UTC().Format(time.RFC3339)
	snapshot := rc.bag.Snapshot()
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		snapshotJSON = []byte("{}")
	}

	errorContext := map[string]any{
		"failed_node_id":              node.ID,
		"failed_node_name":            node.Name,
		"error_message":               nodeErr.Error(),
		"timestamp":                   timestamp,
		"workflow_data_snapshot_json": string(snapshotJSON),
	}
	userID := rc.exec.UserID

	url := stringValue(e.resolver.ResolveValue(ctx, hook.URL, rc.bag, rc.logs, userID, errorContext))

	method := strings.ToUpper(hook.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body []byte
	if hook.BodyTemplate != nil {
		resolved := e.resolver.ResolveTree(ctx, hook.BodyTemplate, rc.bag, rc.logs, userID, errorContext)
		if s, ok := resolved.(string); ok {
			body = []byte(s)
		} else if body, err = json.Marshal(resolved); err != nil {
			rc.logs.Error("[ENGINE/main] Could not encode on-error webhook body for node %s: %v", node.DisplayName(), err)
			e.metrics.WebhookDelivered(webhookFailed)
			return
		}
	} else {
		payload := errorPayload{
			Error:     nodeErr.Error(),
			NodeID:    node.ID,
			NodeName:  node.Name,
			Timestamp: timestamp,
		}
		if hook.IncludeWorkflowData {
			payload.WorkflowData = snapshot
		}
		if body, err = json.Marshal(payload); err != nil {
			rc.logs.Error("[ENGINE/main] Could not encode on-error webhook payload for node %s: %v", node.DisplayName(), err)
			e.metrics.WebhookDelivered(webhookFailed)
			return
		}
	}

	if rc.exec.Simulation {
		rc.logs.Info("[ENGINE/main] SIMULATION: Would send on-error webhook for node %s: %s %s (%d bytes).",
			node.DisplayName(), method, url, len(body))
		e.metrics.WebhookDelivered(webhookSimulated)
		return
	}

	// Уведомление уходит и при отменённом run
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, method, url, bytes.NewReader(body))
	if err != nil {
		rc.logs.Error("[ENGINE/main] Invalid on-error webhook for node %s: %v", node.DisplayName(), err)
		e.metrics.WebhookDelivered(webhookFailed)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hook.Headers {
		req.Header.Set(k, stringValue(e.resolver.ResolveValue(ctx, v, rc.bag, rc.logs, userID, errorContext)))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		rc.logs.Error("[ENGINE/main] On-error webhook for node %s failed: %v", node.DisplayName(), err)
		e.metrics.WebhookDelivered(webhookFailed)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rc.logs.Error("[ENGINE/main] On-error webhook for node %s returned status %d.", node.DisplayName(), resp.StatusCode)
		e.metrics.WebhookDelivered(webhookFailed)
		return
	}

	rc.logs.Info("[ENGINE/main] On-error webhook for node %s sent (status %d).", node.DisplayName(), resp.StatusCode)
	e.metrics.WebhookDelivered(webhookSent)
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
