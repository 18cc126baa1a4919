package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/nodes"
)

// retryNumericKeys — числовые поля "retry", которые после подстановки
// плейсхолдеров часто приходят строками.
var retryNumericKeys = []string{"attempts", "delayMs", "backoffFactor", "maxDelayMs"}

// retryPolicy возвращает политику повторов узла.
// RetryConfig узла важнее ключа "retry" в разрешённой конфигурации.
// Ошибка означает, что ключ "retry" есть, но не разбирается.
func retryPolicy(node *domain.Node, config map[string]any) (*domain.RetryConfig, error) {
	if node.RetryConfig != nil {
		return node.RetryConfig, nil
	}

	raw := config[retryConfigKey]
	if m, ok := raw.(map[string]any); ok {
		raw = coerceRetryNumbers(m)
	}

	var rc domain.RetryConfig
	ok, err := decodeOption(raw, &rc)
	if !ok {
		return nil, err
	}
	return &rc, nil
}

// coerceRetryNumbers возвращает копию m, в которой числовые строки
// числовых полей заменены числами.
func coerceRetryNumbers(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, key := range retryNumericKeys {
		if _, isString := m[key].(string); !isString {
			continue
		}
		if f, ok := nodes.GetConfigFloat(m, key); ok {
			out[key] = f
		}
	}
	if codes, ok := m["retryOnStatusCodes"].([]any); ok {
		fixed := make([]any, len(codes))
		for i, c := range codes {
			fixed[i] = c
			if s, isString := c.(string); isString {
				if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
					fixed[i] = n
				}
			}
		}
		out["retryOnStatusCodes"] = fixed
	}
	return out
}

// onErrorWebhook возвращает конфигурацию on-error webhook узла.
//
// Ключ "onErrorWebhook" читается из сырой конфигурации: плейсхолдеры
// webhook разрешаются позже, вместе с контекстом ошибки.
func onErrorWebhook(node *domain.Node) *domain.OnErrorWebhookConfig {
	if node.OnErrorWebhookConfig != nil {
		return node.OnErrorWebhookConfig
	}
	var wh domain.OnErrorWebhookConfig
	if ok, _ := decodeOption(node.Config[onErrorWebhookKey], &wh); ok && wh.URL != "" {
		return &wh
	}
	return nil
}

// decodeOption переводит значение конфигурации в структуру через JSON.
// Отсутствующее значение — (false, nil).
func decodeOption(raw any, target any) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case string:
		if err := json.Unmarshal([]byte(v), target); err != nil {
			return false, err
		}
		return true, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(data, target); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("expected object, got %T", raw)
	}
}

// shouldRetry определяет, нужно ли делать retry.
func shouldRetry(ctx context.Context, err error, policy *domain.RetryConfig) bool {
	// Run отменён — ждать нечего
	if isRunCancelled(ctx, err) {
		return false
	}

	// Ошибки конфигурации не исправятся повтором
	if errors.Is(err, nodes.ErrInvalidConfig) || errors.Is(err, nodes.ErrProviderNotConfigured) {
		return false
	}

	if policy == nil {
		return true
	}

	// Без фильтров — retry на любую ошибку
	if len(policy.RetryOnStatusCodes) == 0 && len(policy.RetryOnErrorKeywords) == 0 {
		return true
	}

	var statusErr *nodes.HTTPStatusError
	if errors.As(err, &statusErr) && shouldRetryHTTPStatus(statusErr.StatusCode, policy.RetryOnStatusCodes) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range policy.RetryOnErrorKeywords {
		if kw != "" && strings.Contains(msg, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// shouldRetryHTTPStatus проверяет, входит ли HTTP-код в список для retry.
func shouldRetryHTTPStatus(statusCode int, onStatus []int) bool {
	for _, code := range onStatus {
		if statusCode == code {
			return true
		}
	}
	return false
}

// calculateBackoff вычисляет задержку перед попыткой attempt+1:
// delayMs * backoffFactor^(attempt-1), не больше maxDelayMs.
func calculateBackoff(attempt int, policy *domain.RetryConfig) time.Duration {
	if policy == nil || policy.DelayMs <= 0 {
		return 0
	}

	factor := policy.BackoffFactor
	if factor <= 0 {
		factor = 1
	}

	delayMs := float64(policy.DelayMs) * math.Pow(factor, float64(attempt-1))
	if policy.MaxDelayMs > 0 && delayMs > float64(policy.MaxDelayMs) {
		delayMs = float64(policy.MaxDelayMs)
	}
	// Защита от переполнения при больших множителях
	if delayMs > float64(math.MaxInt64/int64(time.Millisecond)) {
		delayMs = float64(math.MaxInt64 / int64(time.Millisecond))
	}

	return time.Duration(delayMs) * time.Millisecond
}
