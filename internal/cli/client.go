package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// --- Response types (форма ответов API) ---

// WorkflowSummary — workflow в списке.
type WorkflowSummary struct {
	ID          string `json:"id"`
	UserID      string `json:"userId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Nodes       int    `json:"nodes"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// RunSummary — run в списке.
type RunSummary struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId,omitempty"`
	Simulation bool   `json:"simulation"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// EnqueueResponse — ответ на постановку run в очередь.
type EnqueueResponse struct {
	RunID      string `json:"runId"`
	WorkflowID string `json:"workflowId"`
	Status     string `json:"status"`
}

// LogsResponse — часть серверного лога run.
type LogsResponse struct {
	Entries []domain.LogEntry `json:"entries"`
	Next    int64             `json:"next"`
	Done    bool              `json:"done"`
	Status  string            `json:"status"`
}

// --- Request types ---

// EnqueueRequest — асинхронный запуск сохранённого workflow.
type EnqueueRequest struct {
	UserID      string         `json:"userId,omitempty"`
	Simulation  bool           `json:"simulation"`
	InitialData map[string]any `json:"initialData,omitempty"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	WorkflowID string `json:"workflowId"`
	NodeID     string `json:"nodeId"`
	UserID     string `json:"userId,omitempty"`
	CronExpr   string `json:"cronExpr"`
	Timezone   string `json:"timezone,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	Simulation bool   `json:"simulation,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	WorkflowID string
	Status     string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ответ API с кодом ошибки.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Flowline API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Синхронное выполнение может идти долго.
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает сохранённые workflows.
func (c *Client) ListWorkflows(ctx context.Context, userID string) ([]WorkflowSummary, error) {
	params := url.Values{}
	if userID != "" {
		params.Set("user_id", userID)
	}
	var wfs []WorkflowSummary
	err := c.list(ctx, "/api/v1/workflows", params, &wfs)
	return wfs, err
}

// CreateWorkflow сохраняет workflow. ID назначает сервер.
func (c *Client) CreateWorkflow(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	var created domain.Workflow
	err := c.post(ctx, "/api/v1/workflows", wf, &created)
	return &created, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var wf domain.Workflow
	err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/workflows/"+url.PathEscape(id))
}

// EnqueueWorkflow ставит run сохранённого workflow в очередь.
func (c *Client) EnqueueWorkflow(ctx context.Context, id string, req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(id)+"/execute", req, &resp)
	return &resp, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunSummary, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", strings.ToUpper(opts.Status))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunSummary
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID вместе с результатами узлов.
func (c *Client) GetRun(ctx context.Context, id string) (*domain.ExecutionResult, error) {
	var run domain.ExecutionResult
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// RunLogs возвращает записи лога run, начиная с from.
func (c *Client) RunLogs(ctx context.Context, id string, from int64) (*LogsResponse, error) {
	path := "/api/v1/runs/" + url.PathEscape(id) + "/logs?from=" + strconv.FormatInt(from, 10)
	var logs LogsResponse
	err := c.get(ctx, path, &logs)
	return &logs, err
}

// --- Schedules ---

// ListSchedules возвращает schedules. Если workflowID не пустой — фильтрует.
func (c *Client) ListSchedules(ctx context.Context, workflowID string) ([]domain.Schedule, error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}

	var schedules []domain.Schedule
	err := c.list(ctx, "/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*domain.Schedule, error) {
	var schedule domain.Schedule
	err := c.post(ctx, "/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/schedules/"+url.PathEscape(id))
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*domain.Schedule, error) {
	var schedule domain.Schedule
	body := map[string]bool{"enabled": enabled}
	err := c.put(ctx, "/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
