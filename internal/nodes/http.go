package nodes

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

const (
	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации httpRequest.
const (
	configMethod    = "method"
	configURL       = "url"
	configHeaders   = "headers"
	configBody      = "body"
	configTimeoutMs = "timeoutMs"
)

// HTTPExecutor — узел HTTP запроса.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "{{credential.API_BASE}}/orders",
//	    "headers": {"Authorization": "Bearer {{credential.ApiToken}}"},
//	    "body": {"id": "{{trigger.requestBody.id}}"},
//	    "timeoutMs": 5000
//	}
//
// Выход:
//
//	{
//	    "status": 200,
//	    "statusText": "OK",
//	    "headers": {"Content-Type": "application/json"},
//	    "data": {...},          // JSON, если удалось разобрать, иначе текст
//	    "response": {...},      // те же четыре поля
//	    "status_code": 200
//	}
//
// Симуляция: simulatedStatusCode (не 2xx — ошибка) и simulatedResponse.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor создаёт HTTPExecutor. nil client — клиент с таймаутом по умолчанию.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPExecutor{client: client}
}

// Type возвращает тип узла.
func (e *HTTPExecutor) Type() domain.NodeType {
	return domain.NodeTypeHTTPRequest
}

// Execute выполняет HTTP запрос.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	cfg := e.parseConfig(req.Config)

	if req.Simulation() {
		return e.simulate(req, cfg)
	}

	if cfg.URL == "" {
		return nil, invalidConfig(domain.NodeTypeHTTPRequest, "url is not configured or resolved")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	httpReq, err := e.buildRequest(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := clientFor(req, e.client).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	return e.parseResponse(resp)
}

// httpConfig — распарсенная конфигурация httpRequest.
type httpConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

func (e *HTTPExecutor) parseConfig(config map[string]any) *httpConfig {
	cfg := &httpConfig{
		Method:  strings.ToUpper(GetConfigString(config, configMethod)),
		URL:     GetConfigString(config, configURL),
		Headers: GetConfigMapString(config, configHeaders),
		Body:    config[configBody],
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	if ms := GetConfigInt(config, configTimeoutMs); ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

// simulate возвращает simulatedResponse без сетевого вызова.
func (e *HTTPExecutor) simulate(req *Request, cfg *httpConfig) (Output, error) {
	req.Logf("Would make %s request to %s", cfg.Method, cfg.URL)

	code := GetConfigInt(req.Config, "simulatedStatusCode")
	if code == 0 {
		code = http.StatusOK
	}
	if code < 200 || code >= 300 {
		return nil, &HTTPStatusError{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       fmt.Sprintf("Simulated HTTP error with status %d", code),
			Simulated:  true,
		}
	}

	var data any = map[string]any{}
	switch v := req.Config["simulatedResponse"].(type) {
	case nil:
	case string:
		if err := json.Unmarshal([]byte(v), &data); err != nil {
			data = v
		}
	default:
		data = v
	}

	return httpOutput(code, http.StatusText(code), map[string]any{}, data), nil
}

// buildRequest создаёт HTTP запрос.
func (e *HTTPExecutor) buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil && cfg.Method != http.MethodGet && cfg.Method != http.MethodHead {
		bodyBytes, isJSON, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		// Устанавливаем Content-Type, если не задан
		if isJSON && !hasHeader(cfg.Headers, "Content-Type") {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// serializeBody сериализует body: строки как есть, остальное в JSON.
func serializeBody(body any) ([]byte, bool, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), false, nil
	case []byte:
		return v, false, nil
	default:
		b, err := json.Marshal(v)
		return b, true, err
	}
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// parseResponse читает ответ. Не 2xx — HTTPStatusError.
func (e *HTTPExecutor) parseResponse(resp *http.Response) (Output, error) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(bodyBytes),
		}
	}

	var data any
	if err := json.Unmarshal(bodyBytes, &data); err != nil {
		data = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return httpOutput(resp.StatusCode, http.StatusText(resp.StatusCode), headers, data), nil
}

// httpOutput собирает выход узла.
func httpOutput(status int, statusText string, headers map[string]any, data any) Output {
	envelope := map[string]any{
		"status":     status,
		"statusText": statusText,
		"headers":    headers,
		"data":       data,
	}
	return Output{
		"status":      status,
		"statusText":  statusText,
		"headers":     headers,
		"data":        data,
		"response":    envelope,
		"status_code": status,
	}
}

// clientFor возвращает HTTP клиент run или клиент исполнителя.
func clientFor(req *Request, fallback *http.Client) *http.Client {
	if req.Exec != nil && req.Exec.HTTPClient != nil {
		return req.Exec.HTTPClient
	}
	return fallback
}

// HTTPStatusError — ответ с не-2xx статусом.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
	Simulated  bool
}

// Error реализует интерфейс error.
func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.StatusCode, body)
}

// Unwrap связывает симулированный сбой с ErrSimulatedFailure.
func (e *HTTPStatusError) Unwrap() error {
	if e.Simulated {
		return ErrSimulatedFailure
	}
	return nil
}
