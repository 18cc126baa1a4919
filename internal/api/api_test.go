package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runlog"
)

// --- Fakes ---

type memWorkflows struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Workflow
}

func (m *memWorkflows) Create(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[wf.ID] = wf
	return nil
}

func (m *memWorkflows) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return wf, nil
}

func (m *memWorkflows) List(_ context.Context, filter repo.WorkflowFilter) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Workflow
	for _, wf := range m.items {
		if filter.UserID == "" || wf.UserID == filter.UserID {
			out = append(out, *wf)
		}
	}
	return out, nil
}

func (m *memWorkflows) Update(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[wf.ID]; !ok {
		return repo.ErrNotFound
	}
	m.items[wf.ID] = wf
	return nil
}

func (m *memWorkflows) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type memRuns struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*domain.ExecutionResult
	queued []domain.ExecutionRequest
	saves  []domain.RunStatus
}

func (m *memRuns) CreateQueued(_ context.Context, req domain.ExecutionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, req)
	m.items[req.RunID] = &domain.ExecutionResult{
		ID:         req.RunID,
		WorkflowID: req.WorkflowID,
		UserID:     req.UserID,
		Status:     domain.RunStatusQueued,
	}
	return nil
}

func (m *memRuns) Save(_ context.Context, run *domain.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.items[run.ID] = &cp
	m.saves = append(m.saves, run.Status)
	return nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return run, nil
}

func (m *memRuns) List(_ context.Context, filter repo.RunFilter) ([]domain.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExecutionResult
	for _, r := range m.items {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

type memSchedules struct {
	items map[uuid.UUID]*domain.Schedule
}

func (m *memSchedules) Create(_ context.Context, s *domain.Schedule) error {
	m.items[s.ID] = s
	return nil
}

func (m *memSchedules) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSchedules) List(context.Context, repo.ScheduleFilter) ([]domain.Schedule, error) {
	var out []domain.Schedule
	for _, s := range m.items {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSchedules) Update(_ context.Context, s *domain.Schedule) error {
	if _, ok := m.items[s.ID]; !ok {
		return repo.ErrNotFound
	}
	m.items[s.ID] = s
	return nil
}

func (m *memSchedules) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type memCredentials struct {
	values map[string]string
}

func (m *memCredentials) Put(_ context.Context, userID, name, value string) error {
	m.values[userID+"/"+name] = value
	return nil
}

func (m *memCredentials) ListNames(_ context.Context, userID string) ([]string, error) {
	var names []string
	for k := range m.values {
		if u, n, _ := strings.Cut(k, "/"); u == userID {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memCredentials) Delete(_ context.Context, userID, name string) error {
	if _, ok := m.values[userID+"/"+name]; !ok {
		return repo.ErrNotFound
	}
	delete(m.values, userID+"/"+name)
	return nil
}

type recordPublisher struct {
	mu       sync.Mutex
	requests []domain.ExecutionRequest
	err      error
}

func (p *recordPublisher) PublishExecutionRequested(_ context.Context, req domain.ExecutionRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.requests = append(p.requests, req)
	return nil
}

type fakeLiveLog struct {
	tail *runlog.Tail
}

func (f *fakeLiveLog) Read(context.Context, uuid.UUID, int64) (*runlog.Tail, error) {
	return f.tail, nil
}

type recordSink struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	closed  bool
}

func (s *recordSink) Append(e domain.LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

func (s *recordSink) Close(context.Context) error {
	s.closed = true
	return nil
}

// --- Fixture ---

type fixture struct {
	server      *httptest.Server
	workflows   *memWorkflows
	runs        *memRuns
	schedules   *memSchedules
	credentials *memCredentials
	publisher   *recordPublisher
	liveLog     *fakeLiveLog
	sink        *recordSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	eng := orchestrator.New(orchestrator.Config{
		Resolver: engine.NewResolver(engine.WithLookupEnv(func(string) (string, bool) { return "", false })),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	f := &fixture{
		workflows:   &memWorkflows{items: map[uuid.UUID]*domain.Workflow{}},
		runs:        &memRuns{items: map[uuid.UUID]*domain.ExecutionResult{}},
		schedules:   &memSchedules{items: map[uuid.UUID]*domain.Schedule{}},
		credentials: &memCredentials{values: map[string]string{}},
		publisher:   &recordPublisher{},
		liveLog:     &fakeLiveLog{},
		sink:        &recordSink{},
	}

	h := NewHandler(Config{
		Workflows:   f.workflows,
		Runs:        f.runs,
		Schedules:   f.schedules,
		Credentials: f.credentials,
		Executor:    eng,
		NodeTypes:   eng.Registry(),
		Publisher:   f.publisher,
		LiveLog:     f.liveLog,
		OpenLog:     func(uuid.UUID) LiveSink { return f.sink },
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, f.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return env.Data
}

func (f *fixture) storeWorkflow(nodes []domain.Node, conns []domain.Connection) *domain.Workflow {
	wf := &domain.Workflow{ID: uuid.New(), UserID: "owner", Name: "wf", Nodes: nodes, Connections: conns}
	f.workflows.items[wf.ID] = wf
	return wf
}

func hookWorkflow() ([]domain.Node, []domain.Connection) {
	return []domain.Node{
			{ID: "hook", Type: domain.NodeTypeWebhookTrigger},
			{ID: "log", Type: domain.NodeTypeLogMessage, Config: map[string]any{"message": "hi {{hook.requestBody.name}}"}},
		}, []domain.Connection{
			{SourceNodeID: "hook", TargetNodeID: "log"},
		}
}

// --- Tests ---

func TestExecuteWorkflow_Synchronous(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()

	resp, body := f.do(t, http.MethodPost, "/api/v1/executions", map[string]any{
		"workflow":   map[string]any{"id": uuid.New(), "nodes": nodes, "connections": conns},
		"userId":     "u1",
		"simulation": true,
		"initialData": map[string]any{
			"hook": map[string]any{"triggered": true, "requestBody": map[string]any{"name": "Ada"}},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	result := decodeData[domain.ExecutionResult](t, body)
	if result.Status != domain.RunStatusSucceeded {
		t.Errorf("run status = %s, want SUCCEEDED", result.Status)
	}
	if result.UserID != "u1" || !result.Simulation {
		t.Errorf("unexpected run: user=%q simulation=%v", result.UserID, result.Simulation)
	}
	if !strings.Contains(string(body), "hi Ada") {
		t.Errorf("resolved log output missing from %s", body)
	}

	stored, err := f.runs.GetByID(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if stored.Status != domain.RunStatusSucceeded {
		t.Errorf("stored status = %s", stored.Status)
	}
	if len(f.runs.saves) != 2 || f.runs.saves[0] != domain.RunStatusRunning {
		t.Errorf("saves = %v, want [RUNNING SUCCEEDED]", f.runs.saves)
	}
	if !f.sink.closed || len(f.sink.entries) == 0 {
		t.Error("live log was not written and closed")
	}
}

func TestExecuteWorkflow_InvalidGraphIsResult(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/v1/executions", map[string]any{
		"workflow": map[string]any{
			"nodes": []map[string]any{
				{"id": "a", "type": "logMessage"},
				{"id": "b", "type": "logMessage"},
			},
			"connections": []map[string]any{
				{"sourceNodeId": "a", "targetNodeId": "b"},
				{"sourceNodeId": "b", "targetNodeId": "a"},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	result := decodeData[domain.ExecutionResult](t, body)
	if result.Status != domain.RunStatusFailed || result.Error == "" {
		t.Errorf("want FAILED with error, got %s %q", result.Status, result.Error)
	}
}

func TestExecuteWorkflow_BadRequest(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"missing workflow", map[string]any{"userId": "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, "/api/v1/executions", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestWorkflowCRUD(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()

	resp, body := f.do(t, http.MethodPost, "/api/v1/workflows", WorkflowRequest{
		UserID: "owner", Name: "greeter", Nodes: nodes, Connections: conns,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	created := decodeData[domain.Workflow](t, body)
	if created.ID == uuid.Nil || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected workflow: %+v", created)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/workflows/"+created.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := decodeData[domain.Workflow](t, body); len(got.Nodes) != 2 {
		t.Errorf("got %d nodes, want 2", len(got.Nodes))
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/workflows?user_id=owner", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if list := decodeData[[]WorkflowSummary](t, body); len(list) != 1 || list[0].Nodes != 2 {
		t.Errorf("unexpected list: %+v", list)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/workflows/"+created.ID.String(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/workflows/"+created.ID.String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateWorkflow_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  WorkflowRequest
		want int
	}{
		{"no name", WorkflowRequest{Nodes: []domain.Node{{ID: "a", Type: domain.NodeTypeLogMessage}}}, http.StatusBadRequest},
		{"no nodes", WorkflowRequest{Name: "x"}, http.StatusUnprocessableEntity},
		{"unknown type", WorkflowRequest{Name: "x", Nodes: []domain.Node{{ID: "a", Type: "teleport"}}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/v1/workflows", tt.req)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
	if len(f.workflows.items) != 0 {
		t.Error("rejected workflows must not be stored")
	}
}

func TestUpdateWorkflow(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	resp, body := f.do(t, http.MethodPut, "/api/v1/workflows/"+wf.ID.String(), WorkflowRequest{
		Nodes: []domain.Node{{ID: "only", Type: domain.NodeTypeLogMessage}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	got := decodeData[domain.Workflow](t, body)
	if got.Name != "wf" || got.UserID != "owner" || len(got.Nodes) != 1 {
		t.Errorf("unexpected workflow after update: %+v", got)
	}

	resp, _ = f.do(t, http.MethodPut, "/api/v1/workflows/"+uuid.NewString(), WorkflowRequest{Name: "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("update unknown = %d, want 404", resp.StatusCode)
	}
}

func TestEnqueueWorkflow(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	resp, body := f.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/execute", EnqueueRequest{Simulation: true})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	got := decodeData[EnqueueResponse](t, body)
	if got.Status != domain.RunStatusQueued || got.WorkflowID != wf.ID {
		t.Errorf("unexpected response: %+v", got)
	}

	if len(f.publisher.requests) != 1 {
		t.Fatalf("published %d requests, want 1", len(f.publisher.requests))
	}
	req := f.publisher.requests[0]
	if req.RunID != got.RunID || req.UserID != "owner" || !req.Simulation || req.Source != "api" {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(f.runs.queued) != 1 || f.runs.queued[0].RunID != got.RunID {
		t.Error("queued run must be created before publishing")
	}
}

func TestEnqueueWorkflow_EmptyBody(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	resp, body := f.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/execute", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
}

func TestEnqueueWorkflow_PublishFailureMarksRunFailed(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/workflows/"+wf.ID.String()+"/execute", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	runID := f.runs.queued[0].RunID
	run, _ := f.runs.GetByID(context.Background(), runID)
	if run.Status != domain.RunStatusFailed || !strings.Contains(run.Error, "broker down") {
		t.Errorf("run = %s %q, want FAILED with enqueue error", run.Status, run.Error)
	}
}

func TestTriggerWebhook(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	req, _ := http.NewRequest(http.MethodPost,
		f.server.URL+"/api/v1/hooks/"+wf.ID.String()+"/hook?source=github",
		strings.NewReader(`{"name":"Ada","n":3}`))
	req.Header.Set("X-Event", "push")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	if len(f.publisher.requests) != 1 {
		t.Fatalf("published %d requests, want 1", len(f.publisher.requests))
	}
	got := f.publisher.requests[0]
	if got.Source != "webhook" || got.UserID != "owner" {
		t.Errorf("unexpected request: %+v", got)
	}

	activation, ok := got.InitialData["hook"].(map[string]any)
	if !ok {
		t.Fatalf("missing activation: %+v", got.InitialData)
	}
	if activation["triggered"] != true {
		t.Error("activation must be triggered")
	}
	body, _ := activation["requestBody"].(map[string]any)
	if body["name"] != "Ada" || body["n"] != float64(3) {
		t.Errorf("requestBody = %+v", activation["requestBody"])
	}
	headers, _ := activation["requestHeaders"].(map[string]any)
	if headers["x-event"] != "push" {
		t.Errorf("requestHeaders = %+v", headers)
	}
	query, _ := activation["requestQuery"].(map[string]any)
	if query["source"] != "github" {
		t.Errorf("requestQuery = %+v", query)
	}
}

func TestTriggerWebhook_Rejections(t *testing.T) {
	f := newFixture(t)
	nodes, conns := hookWorkflow()
	wf := f.storeWorkflow(nodes, conns)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad workflow id", "/api/v1/hooks/nope/hook", http.StatusBadRequest},
		{"unknown workflow", "/api/v1/hooks/" + uuid.NewString() + "/hook", http.StatusNotFound},
		{"unknown node", "/api/v1/hooks/" + wf.ID.String() + "/ghost", http.StatusNotFound},
		{"not a webhook trigger", "/api/v1/hooks/" + wf.ID.String() + "/log", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, tt.path, "{}")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	if len(f.publisher.requests) != 0 {
		t.Error("rejected webhooks must not enqueue runs")
	}
}

func TestWebhookBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"json object", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"plain text", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := webhookBody([]byte(tt.in))
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if !bytes.Equal(gotJSON, wantJSON) {
				t.Errorf("got %s, want %s", gotJSON, wantJSON)
			}
		})
	}
	if m, ok := webhookBody(nil).(map[string]any); !ok || len(m) != 0 {
		t.Error("empty body must become an empty object")
	}
}

func TestGetRunLogs(t *testing.T) {
	f := newFixture(t)
	entry := func(msg string) domain.LogEntry {
		return domain.LogEntry{Timestamp: time.Now(), Message: msg, Type: domain.LogTypeInfo}
	}

	finished := &domain.ExecutionResult{
		ID:     uuid.New(),
		Status: domain.RunStatusSucceeded,
		Logs:   []domain.LogEntry{entry("one"), entry("two"), entry("three")},
	}
	running := &domain.ExecutionResult{ID: uuid.New(), Status: domain.RunStatusRunning}
	f.runs.items[finished.ID] = finished
	f.runs.items[running.ID] = running
	f.liveLog.tail = &runlog.Tail{Entries: []domain.LogEntry{entry("live")}, Next: 5}

	t.Run("stored log from offset", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/api/v1/runs/"+finished.ID.String()+"/logs?from=1", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		got := decodeData[LogsResponse](t, body)
		if len(got.Entries) != 2 || got.Entries[0].Message != "two" || got.Next != 3 || !got.Done {
			t.Errorf("unexpected logs: %+v", got)
		}
	})

	t.Run("offset past the end", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/api/v1/runs/"+finished.ID.String()+"/logs?from=10", nil)
		got := decodeData[LogsResponse](t, body)
		if len(got.Entries) != 0 || got.Next != 10 {
			t.Errorf("unexpected logs: %+v", got)
		}
	})

	t.Run("live tail while running", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/api/v1/runs/"+running.ID.String()+"/logs?from=4", nil)
		got := decodeData[LogsResponse](t, body)
		if len(got.Entries) != 1 || got.Entries[0].Message != "live" || got.Next != 5 || got.Done {
			t.Errorf("unexpected logs: %+v", got)
		}
		if got.Status != domain.RunStatusRunning {
			t.Errorf("status = %s", got.Status)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString()+"/logs", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestListAndGetRuns(t *testing.T) {
	f := newFixture(t)
	run := &domain.ExecutionResult{ID: uuid.New(), Status: domain.RunStatusPartial, Nodes: map[string]*domain.NodeResult{}}
	f.runs.items[run.ID] = run

	_, body := f.do(t, http.MethodGet, "/api/v1/runs?status=PARTIAL", nil)
	if list := decodeData[[]RunSummary](t, body); len(list) != 1 || list[0].ID != run.ID {
		t.Errorf("unexpected list: %+v", list)
	}

	resp, _ := f.do(t, http.MethodGet, "/api/v1/runs?workflow_id=nope", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad workflow_id = %d, want 400", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if got := decodeData[domain.ExecutionResult](t, body); got.Status != domain.RunStatusPartial {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSchedules(t *testing.T) {
	f := newFixture(t)
	wf := f.storeWorkflow([]domain.Node{
		{ID: "cron", Type: domain.NodeTypeScheduleTrigger},
		{ID: "log", Type: domain.NodeTypeLogMessage},
	}, []domain.Connection{{SourceNodeID: "cron", TargetNodeID: "log"}})

	resp, body := f.do(t, http.MethodPost, "/api/v1/schedules", CreateScheduleRequest{
		WorkflowID: wf.ID, NodeID: "cron", CronExpr: "*/5 * * * *",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", resp.StatusCode, body)
	}
	sched := decodeData[domain.Schedule](t, body)
	if !sched.Enabled || sched.Timezone != "UTC" || sched.UserID != "owner" {
		t.Errorf("unexpected defaults: %+v", sched)
	}
	if sched.NextDueAt == nil || !sched.NextDueAt.After(time.Now().Add(-time.Second)) {
		t.Errorf("next due not computed: %v", sched.NextDueAt)
	}

	resp, body = f.do(t, http.MethodPut, "/api/v1/schedules/"+sched.ID.String()+"/enabled", SetEnabledRequest{Enabled: false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable status = %d, body = %s", resp.StatusCode, body)
	}
	if got := decodeData[domain.Schedule](t, body); got.Enabled {
		t.Error("schedule still enabled")
	}

	_, body = f.do(t, http.MethodGet, "/api/v1/schedules", nil)
	if list := decodeData[[]domain.Schedule](t, body); len(list) != 1 {
		t.Errorf("list has %d schedules, want 1", len(list))
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/schedules/"+sched.ID.String(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/api/v1/schedules/"+sched.ID.String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateSchedule_Rejections(t *testing.T) {
	f := newFixture(t)
	wf := f.storeWorkflow([]domain.Node{
		{ID: "cron", Type: domain.NodeTypeScheduleTrigger},
		{ID: "log", Type: domain.NodeTypeLogMessage},
	}, nil)

	tests := []struct {
		name string
		req  CreateScheduleRequest
		want int
	}{
		{"missing workflow", CreateScheduleRequest{NodeID: "cron", CronExpr: "* * * * *"}, http.StatusBadRequest},
		{"unknown workflow", CreateScheduleRequest{WorkflowID: uuid.New(), NodeID: "cron", CronExpr: "* * * * *"}, http.StatusNotFound},
		{"unknown node", CreateScheduleRequest{WorkflowID: wf.ID, NodeID: "ghost", CronExpr: "* * * * *"}, http.StatusBadRequest},
		{"not a schedule trigger", CreateScheduleRequest{WorkflowID: wf.ID, NodeID: "log", CronExpr: "* * * * *"}, http.StatusUnprocessableEntity},
		{"bad cron", CreateScheduleRequest{WorkflowID: wf.ID, NodeID: "cron", CronExpr: "sometimes"}, http.StatusBadRequest},
		{"bad timezone", CreateScheduleRequest{WorkflowID: wf.ID, NodeID: "cron", CronExpr: "* * * * *", Timezone: "Mars/Base"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/v1/schedules", tt.req)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestCredentials(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPut, "/api/v1/users/u1/credentials/API_KEY", PutCredentialRequest{Value: "s3cret"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if f.credentials.values["u1/API_KEY"] != "s3cret" {
		t.Error("credential not stored")
	}

	resp, body := f.do(t, http.MethodGet, "/api/v1/users/u1/credentials", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	if strings.Contains(string(body), "s3cret") {
		t.Error("credential values must never be returned")
	}
	if names := decodeData[[]string](t, body); len(names) != 1 || names[0] != "API_KEY" {
		t.Errorf("names = %v", names)
	}

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/users/u1/credentials/API_KEY", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/v1/users/u1/credentials/API_KEY", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", resp.StatusCode)
	}
}

func TestAsyncRoutesWithoutQueue(t *testing.T) {
	h := NewHandler(Config{
		Workflows: &memWorkflows{items: map[uuid.UUID]*domain.Workflow{}},
		Runs:      &memRuns{items: map[uuid.UUID]*domain.ExecutionResult{}},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	for _, path := range []string{
		"/api/v1/workflows/" + uuid.NewString() + "/execute",
		"/api/v1/hooks/" + uuid.NewString() + "/hook",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
