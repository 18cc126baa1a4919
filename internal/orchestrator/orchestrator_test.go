package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/nodes"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// --- Fakes ---

// funcExecutor — исполнитель для тестов с произвольным поведением.
type funcExecutor struct {
	typ   domain.NodeType
	calls atomic.Int32
	fn    func(ctx context.Context, req *nodes.Request, call int) (nodes.Output, error)
}

func (f *funcExecutor) Type() domain.NodeType { return f.typ }

func (f *funcExecutor) Execute(ctx context.Context, req *nodes.Request) (nodes.Output, error) {
	call := int(f.calls.Add(1))
	return f.fn(ctx, req, call)
}

func okExecutor(typ domain.NodeType) *funcExecutor {
	return &funcExecutor{typ: typ, fn: func(_ context.Context, req *nodes.Request, _ int) (nodes.Output, error) {
		return nodes.Output{"from": req.NodeID()}, nil
	}}
}

func failExecutor(typ domain.NodeType, err error) *funcExecutor {
	return &funcExecutor{typ: typ, fn: func(context.Context, *nodes.Request, int) (nodes.Output, error) {
		return nil, err
	}}
}

// spyTransport считает исходящие HTTP запросы.
type spyTransport struct {
	calls atomic.Int32
}

func (s *spyTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return nil, errors.New("network disabled in test")
}

// recordSleep запоминает задержки retry и не ждёт.
type recordSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestEngine(execs ...nodes.Executor) *Engine {
	reg := nodes.NewRegistry()
	for _, ex := range execs {
		reg.Register(ex)
	}
	e := New(Config{Registry: reg, Resolver: engine.NewResolver(engine.WithLookupEnv(noEnv))})
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func noEnv(string) (string, bool) { return "", false }

func node(id string, typ domain.NodeType) domain.Node {
	return domain.Node{ID: id, Type: typ, Name: strings.ToUpper(id)}
}

func edge(from, to string) domain.Connection {
	return domain.Connection{SourceNodeID: from, TargetNodeID: to}
}

func countLogs(entries []domain.LogEntry, substr string) int {
	n := 0
	for _, e := range entries {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// --- End-to-end ---

func TestExecute_SimulationEndToEnd(t *testing.T) {
	spy := &spyTransport{}
	env := map[string]string{"API_BASE": "https://api.example.com"}
	e := New(Config{
		HTTPClient: &http.Client{Transport: spy},
		Resolver: engine.NewResolver(engine.WithLookupEnv(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		})),
	})

	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{ID: "node1", Type: domain.NodeTypeWebhookTrigger, Name: "Start"},
			{ID: "node2", Type: domain.NodeTypeHTTPRequest, Name: "Ping", Config: map[string]any{
				"url": "{{credential.API_BASE}}/ping",
			}},
			{ID: "node3", Type: domain.NodeTypeLogMessage, Name: "Report", Config: map[string]any{
				"message": "status={{node2.response.status}}",
			}},
		},
		Connections: []domain.Connection{edge("node1", "node2"), edge("node2", "node3")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{UserID: "u1", Simulation: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Status)
	}
	if got := spy.calls.Load(); got != 0 {
		t.Errorf("expected no outbound HTTP calls, got %d", got)
	}
	if got := countLogs(result.Logs, "[NODE "); got != 3 {
		t.Errorf("expected 3 node log lines, got %d", got)
	}
	if got := countLogs(result.Logs, "SIMULATION"); got < 3 {
		t.Errorf("expected SIMULATION in every node line, got %d", got)
	}
	if countLogs(result.Logs, "status=200") != 1 {
		t.Errorf("expected resolved log message, logs: %+v", result.Logs)
	}
	if countLogs(result.Logs, "Starting execution in SIMULATION mode for user u1.") != 1 {
		t.Error("expected start line")
	}

	for _, id := range []string{"node1", "node2", "node3"} {
		if _, ok := result.Data[id]; !ok {
			t.Errorf("expected %s in data bag", id)
		}
		if result.Nodes[id].Status != domain.NodeStatusSuccess {
			t.Errorf("%s: expected success, got %s", id, result.Nodes[id].Status)
		}
	}

	out := result.Data["node3"].(nodes.Output)
	if out["output"] != "status=200" {
		t.Errorf("unexpected logMessage output %v", out)
	}
}

func TestExecute_TemplateReferenceOrdersNodes(t *testing.T) {
	e := New(Config{Resolver: engine.NewResolver(engine.WithLookupEnv(noEnv))})

	// node2 читает node1 без связи между ними
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{ID: "node2", Type: domain.NodeTypeLogMessage, Config: map[string]any{"message": "got={{node1.output}}"}},
			{ID: "node1", Type: domain.NodeTypeLogMessage, Config: map[string]any{"message": "hello"}},
		},
	}

	for i := 0; i < 5; i++ {
		result, err := e.Execute(context.Background(), wf, ExecuteOptions{Simulation: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := result.Data["node2"].(nodes.Output)
		if out["output"] != "got=hello" {
			t.Fatalf("run %d: expected got=hello, got %v", i, out["output"])
		}
	}
}

func TestExecute_InitialDataActivatesTrigger(t *testing.T) {
	e := New(Config{Resolver: engine.NewResolver(engine.WithLookupEnv(noEnv))})

	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{ID: "hook", Type: domain.NodeTypeWebhookTrigger},
			{ID: "log", Type: domain.NodeTypeLogMessage, Config: map[string]any{
				"message": "hello {{hook.requestBody.name}}",
			}},
		},
		Connections: []domain.Connection{edge("hook", "log")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{
		InitialData: map[string]any{
			"hook":    map[string]any{"triggered": true, "requestBody": map[string]any{"name": "Ann"}},
			"unknown": "ignored",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if countLogs(result.Logs, "hello Ann") != 1 {
		t.Errorf("expected activation data in log, got %+v", result.Logs)
	}
	if _, ok := result.Data["unknown"]; ok {
		t.Error("keys that are not node IDs must not be seeded")
	}
	if countLogs(result.Logs, "LIVE mode") != 1 {
		t.Error("expected LIVE mode start line")
	}
}

// --- Failure propagation ---

func TestExecute_FailureSkipsDownstreamOnly(t *testing.T) {
	boom := failExecutor("boom", errors.New("kaput"))
	ok := okExecutor("ok")
	e := newTestEngine(boom, ok)

	//   a(boom) → b → c
	//   d → e
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("a", "boom"), node("b", "ok"), node("c", "ok"),
			node("d", "ok"), node("e", "ok"),
		},
		Connections: []domain.Connection{edge("a", "b"), edge("b", "c"), edge("d", "e")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]domain.NodeStatus{
		"a": domain.NodeStatusError,
		"b": domain.NodeStatusSkipped,
		"c": domain.NodeStatusSkipped,
		"d": domain.NodeStatusSuccess,
		"e": domain.NodeStatusSuccess,
	}
	for id, status := range want {
		if got := result.Nodes[id].Status; got != status {
			t.Errorf("%s: expected %s, got %s", id, status, got)
		}
	}

	if result.Status != domain.RunStatusPartial {
		t.Errorf("expected PARTIAL, got %s", result.Status)
	}
	if result.Nodes["b"].Reason != reasonUpstreamFailed {
		t.Errorf("unexpected skip reason %q", result.Nodes["b"].Reason)
	}

	failed := result.Data["a"].(map[string]any)
	if failed["lastExecutionStatus"] != "error" || failed["error_message"] != "kaput" {
		t.Errorf("unexpected failure annotation %v", failed)
	}
	if countLogs(result.Logs, "Skipping node 'B' (ID: b) due to upstream failure.") != 1 {
		t.Error("expected skip log line for b")
	}
	if countLogs(result.Logs, "FAILED permanently: kaput") != 1 {
		t.Error("expected permanent failure log line")
	}
}

func TestExecute_AllFailed(t *testing.T) {
	e := newTestEngine(failExecutor("boom", errors.New("x")))

	result, err := e.Execute(context.Background(), &domain.Workflow{
		Nodes: []domain.Node{node("a", "boom")},
	}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", result.Status)
	}
}

func TestExecute_RunConditionSkipDoesNotPropagate(t *testing.T) {
	ok := okExecutor("ok")
	e := newTestEngine(ok)

	a := node("a", "ok")
	a.Config = map[string]any{"_flow_run_condition": "false"}
	wf := &domain.Workflow{
		Nodes:       []domain.Node{a, node("b", "ok")},
		Connections: []domain.Connection{edge("a", "b")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Nodes["a"].Status != domain.NodeStatusSkipped || result.Nodes["a"].Reason != reasonConditionFalse {
		t.Errorf("expected a skipped by condition, got %+v", result.Nodes["a"])
	}
	if result.Nodes["b"].Status != domain.NodeStatusSuccess {
		t.Errorf("expected b to run, got %s", result.Nodes["b"].Status)
	}
	if ok.calls.Load() != 1 {
		t.Errorf("expected 1 executor call, got %d", ok.calls.Load())
	}
	if result.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Status)
	}
}

func TestExecute_RunConditionSkipAnnotatesBag(t *testing.T) {
	e := New(Config{Resolver: engine.NewResolver(engine.WithLookupEnv(noEnv))})

	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeTypeLogMessage, Config: map[string]any{
				"_flow_run_condition": "false",
				"message":             "never",
			}},
			{ID: "b", Type: domain.NodeTypeLogMessage, Config: map[string]any{
				"message": "{{a.lastExecutionStatus}}:{{a.output}}",
			}},
		},
		Connections: []domain.Connection{edge("a", "b")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{Simulation: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	annotation, ok := result.Data["a"].(map[string]any)
	if !ok || annotation["reason"] != reasonConditionFalse {
		t.Fatalf("expected skip annotation for a, got %v", result.Data["a"])
	}
	out := result.Data["b"].(nodes.Output)
	if out["output"] != "skipped:{{a.output}}" {
		t.Errorf("expected annotation visible and output missing, got %v", out["output"])
	}
}

func TestExecute_InvalidWorkflow(t *testing.T) {
	e := newTestEngine(okExecutor("ok"))

	tests := []struct {
		name string
		wf   *domain.Workflow
	}{
		{"empty", &domain.Workflow{}},
		{"unknown type", &domain.Workflow{Nodes: []domain.Node{node("a", "nope")}}},
		{"cycle", &domain.Workflow{
			Nodes:       []domain.Node{node("a", "ok"), node("b", "ok")},
			Connections: []domain.Connection{edge("a", "b"), edge("b", "a")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := e.Execute(context.Background(), tt.wf, ExecuteOptions{})
			if !errors.Is(err, ErrInvalidWorkflow) {
				t.Fatalf("expected ErrInvalidWorkflow, got %v", err)
			}
			if result == nil || result.Status != domain.RunStatusFailed {
				t.Fatalf("expected FAILED result, got %+v", result)
			}
			if countLogs(result.Logs, "Critical graph error") != 1 {
				t.Error("expected critical graph error log line")
			}
		})
	}
}

// --- Retry ---

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	flaky := &funcExecutor{typ: "flaky", fn: func(_ context.Context, _ *nodes.Request, call int) (nodes.Output, error) {
		if call < 3 {
			return nil, errors.New("temporary outage")
		}
		return nodes.Output{"ok": true}, nil
	}}
	e := newTestEngine(flaky)
	rec := &recordSleep{}
	e.sleep = rec.sleep

	n := node("a", "flaky")
	n.RetryConfig = &domain.RetryConfig{Attempts: 3, DelayMs: 100, BackoffFactor: 2}

	result, err := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nr := result.Nodes["a"]
	if nr.Status != domain.NodeStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", nr.Status, nr.Error)
	}
	if len(nr.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(nr.Attempts))
	}
	if nr.Attempts[0].Error != "temporary outage" || nr.Attempts[2].Error != "" {
		t.Errorf("unexpected attempts %+v", nr.Attempts)
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(rec.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, rec.delays)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], rec.delays[i])
		}
	}
	if countLogs(result.Logs, "failed on attempt 1") != 1 || countLogs(result.Logs, "Retrying in 200ms") != 1 {
		t.Errorf("expected retry log lines, got %+v", result.Logs)
	}
}

func TestExecute_RetryConfigFromNodeConfig(t *testing.T) {
	boom := failExecutor("boom", errors.New("x"))
	e := newTestEngine(boom)

	n := node("a", "boom")
	n.Config = map[string]any{"retry": map[string]any{"attempts": 2}}

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if got := len(result.Nodes["a"].Attempts); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestExecute_RetryConfigNumericStrings(t *testing.T) {
	boom := failExecutor("boom", errors.New("x"))
	e := newTestEngine(boom)

	n := node("a", "boom")
	n.Config = map[string]any{"retry": map[string]any{
		"attempts":             "3",
		"delayMs":              "10",
		"retryOnStatusCodes":   []any{"503"},
		"retryOnErrorKeywords": []any{"x"},
	}}

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if got := len(result.Nodes["a"].Attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestExecute_UnreadableRetryConfigIsLogged(t *testing.T) {
	boom := failExecutor("boom", errors.New("x"))
	e := newTestEngine(boom)

	n := node("a", "boom")
	n.Config = map[string]any{"retry": map[string]any{"attempts": "three"}}

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if got := len(result.Nodes["a"].Attempts); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
	if countLogs(result.Logs, "unreadable retry config") != 1 {
		t.Errorf("expected retry config warning, got %+v", result.Logs)
	}
}

func TestExecute_SimulationSingleAttempt(t *testing.T) {
	boom := failExecutor("boom", errors.New("x"))
	e := newTestEngine(boom)

	n := node("a", "boom")
	n.RetryConfig = &domain.RetryConfig{Attempts: 5}

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{Simulation: true})
	if boom.calls.Load() != 1 {
		t.Errorf("expected 1 call in simulation, got %d", boom.calls.Load())
	}
	if result.Nodes["a"].Status != domain.NodeStatusError {
		t.Errorf("expected error, got %s", result.Nodes["a"].Status)
	}
}

func TestExecute_ConfigErrorsAreNotRetried(t *testing.T) {
	bad := failExecutor("bad", nodes.ErrInvalidConfig)
	e := newTestEngine(bad)

	n := node("a", "bad")
	n.RetryConfig = &domain.RetryConfig{Attempts: 4}

	_, _ = e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if bad.calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", bad.calls.Load())
	}
}

func TestShouldRetry(t *testing.T) {
	statusErr := &nodes.HTTPStatusError{StatusCode: 503, Status: "503 Service Unavailable"}

	tests := []struct {
		name   string
		err    error
		policy *domain.RetryConfig
		want   bool
	}{
		{"no policy", errors.New("x"), nil, true},
		{"no filters", errors.New("x"), &domain.RetryConfig{Attempts: 3}, true},
		{"invalid config", nodes.ErrInvalidConfig, nil, false},
		{"provider missing", nodes.ErrProviderNotConfigured, nil, false},
		{"status match", statusErr, &domain.RetryConfig{RetryOnStatusCodes: []int{502, 503}}, true},
		{"status mismatch", statusErr, &domain.RetryConfig{RetryOnStatusCodes: []int{429}}, false},
		{"keyword match", errors.New("connection RESET by peer"), &domain.RetryConfig{RetryOnErrorKeywords: []string{"reset"}}, true},
		{"keyword mismatch", errors.New("bad request"), &domain.RetryConfig{RetryOnErrorKeywords: []string{"timeout"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(context.Background(), tt.err, tt.policy); got != tt.want {
				t.Errorf("shouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if shouldRetry(ctx, context.Canceled, nil) {
		t.Error("cancelled run must not be retried")
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		policy  *domain.RetryConfig
		want    time.Duration
	}{
		{"nil policy", 1, nil, 0},
		{"fixed", 3, &domain.RetryConfig{DelayMs: 500}, 500 * time.Millisecond},
		{"exponential", 3, &domain.RetryConfig{DelayMs: 100, BackoffFactor: 3}, 900 * time.Millisecond},
		{"capped", 5, &domain.RetryConfig{DelayMs: 1000, BackoffFactor: 2, MaxDelayMs: 5000}, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateBackoff(tt.attempt, tt.policy); got != tt.want {
				t.Errorf("calculateBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

// --- On-error webhook ---

func TestExecute_OnErrorWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		received map[string]any
		header   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		header = r.Header.Get("X-Node")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	e := newTestEngine(okExecutor("ok"), failExecutor("boom", errors.New("disk full")))

	n := node("b", "boom")
	n.OnErrorWebhookConfig = &domain.OnErrorWebhookConfig{
		URL:                 server.URL + "/alerts",
		Headers:             map[string]string{"X-Node": "{{failed_node_id}}"},
		IncludeWorkflowData: true,
	}
	wf := &domain.Workflow{
		Nodes:       []domain.Node{node("a", "ok"), n},
		Connections: []domain.Connection{edge("a", "b")},
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil {
		t.Fatal("webhook was not called")
	}
	if received["error"] != "disk full" || received["nodeId"] != "b" || received["nodeName"] != "B" {
		t.Errorf("unexpected payload %v", received)
	}
	if _, err := time.Parse(time.RFC3339, received["timestamp"].(string)); err != nil {
		t.Errorf("timestamp is not RFC 3339: %v", received["timestamp"])
	}
	data, ok := received["workflowData"].(map[string]any)
	if !ok || data["a"] == nil {
		t.Errorf("expected workflow data with node a, got %v", received["workflowData"])
	}
	if header != "b" {
		t.Errorf("expected resolved header, got %q", header)
	}
	if result.Nodes["b"].Status != domain.NodeStatusError {
		t.Error("webhook must not change node outcome")
	}
	if countLogs(result.Logs, "On-error webhook for node 'B' (ID: b) sent (status 204).") != 1 {
		t.Errorf("expected delivery log line, got %+v", result.Logs)
	}
}

func TestExecute_OnErrorWebhookBodyTemplate(t *testing.T) {
	bodies := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- string(body)
	}))
	defer server.Close()

	e := newTestEngine(failExecutor("boom", errors.New("bad gateway")))

	n := node("a", "boom")
	n.Config = map[string]any{"onErrorWebhook": map[string]any{
		"url":          server.URL,
		"bodyTemplate": map[string]any{"text": "{{failed_node_name}} failed: {{error_message}}"},
	}}

	_, _ = e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if got := <-bodies; got != `{"text":"A failed: bad gateway"}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestExecute_OnErrorWebhookSimulation(t *testing.T) {
	spy := &spyTransport{}
	reg := nodes.NewRegistry()
	reg.Register(failExecutor("boom", errors.New("x")))
	e := New(Config{Registry: reg, HTTPClient: &http.Client{Transport: spy}})

	n := node("a", "boom")
	n.OnErrorWebhookConfig = &domain.OnErrorWebhookConfig{URL: "https://hooks.example.com"}

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{Simulation: true})
	if spy.calls.Load() != 0 {
		t.Error("webhook must not be sent in simulation")
	}
	if countLogs(result.Logs, "SIMULATION: Would send on-error webhook") != 1 {
		t.Errorf("expected simulation log line, got %+v", result.Logs)
	}
}

func TestExecute_OnErrorWebhookFailureIsLogged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := newTestEngine(failExecutor("boom", errors.New("x")))
	n := node("a", "boom")
	n.OnErrorWebhookConfig = &domain.OnErrorWebhookConfig{URL: server.URL}

	result, err := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("webhook failures must not escalate: %v", err)
	}
	if countLogs(result.Logs, "returned status 500") != 1 {
		t.Errorf("expected webhook failure log line, got %+v", result.Logs)
	}
}

// --- Concurrency & cancellation ---

func TestExecute_MaxParallel(t *testing.T) {
	var running, peak atomic.Int32
	slow := &funcExecutor{typ: "slow", fn: func(context.Context, *nodes.Request, int) (nodes.Output, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nodes.Output{}, nil
	}}

	reg := nodes.NewRegistry()
	reg.Register(slow)
	e := New(Config{Registry: reg, MaxParallel: 2})

	wf := &domain.Workflow{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		wf.Nodes = append(wf.Nodes, node(id, "slow"))
	}

	result, err := e.Execute(context.Background(), wf, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", result.Status)
	}
	if p := peak.Load(); p > 2 || p < 1 {
		t.Errorf("expected at most 2 concurrent nodes, peak was %d", p)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	blocking := &funcExecutor{typ: "block", fn: func(ctx context.Context, _ *nodes.Request, _ int) (nodes.Output, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := newTestEngine(blocking, okExecutor("ok"))

	wf := &domain.Workflow{
		Nodes:       []domain.Node{node("a", "block"), node("b", "ok")},
		Connections: []domain.Connection{edge("a", "b")},
	}

	result, err := e.Execute(ctx, wf, ExecuteOptions{})
	if !errors.Is(err, ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if result.Status != domain.RunStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", result.Status)
	}
	for _, id := range []string{"a", "b"} {
		if result.Nodes[id].Status != domain.NodeStatusSkipped || result.Nodes[id].Reason != reasonCancelled {
			t.Errorf("%s: expected skipped by cancellation, got %+v", id, result.Nodes[id])
		}
	}
	e.mu.RLock()
	active := len(e.activeRuns)
	e.mu.RUnlock()
	if active != 0 {
		t.Error("run must be removed from active runs")
	}
}

func TestExecute_NodeTimeout(t *testing.T) {
	hang := &funcExecutor{typ: "hang", fn: func(ctx context.Context, _ *nodes.Request, _ int) (nodes.Output, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := newTestEngine(hang)

	n := node("a", "hang")
	n.Config = map[string]any{"timeoutMs": 20}

	result, err := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Nodes["a"].Status != domain.NodeStatusError {
		t.Errorf("expected timeout to fail the node, got %s", result.Nodes["a"].Status)
	}
}

func TestExecute_SuccessAfterTimeoutIsKept(t *testing.T) {
	late := &funcExecutor{typ: "late", fn: func(ctx context.Context, _ *nodes.Request, _ int) (nodes.Output, error) {
		<-ctx.Done()
		return nodes.Output{"sent": true}, nil
	}}
	e := newTestEngine(late)

	n := node("a", "late")
	n.Config = map[string]any{"timeoutMs": 10}
	n.RetryConfig = &domain.RetryConfig{Attempts: 3}

	result, err := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{n}}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Nodes["a"].Status != domain.NodeStatusSuccess {
		t.Errorf("expected success, got %s (%s)", result.Nodes["a"].Status, result.Nodes["a"].Error)
	}
	if got := late.calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestExecute_ActiveRunsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()

	// activeRuns возвращает -1, если метрика не найдена.
	activeRuns := func() float64 {
		families, err := reg.Gather()
		if err != nil {
			return -1
		}
		for _, mf := range families {
			if mf.GetName() == "flowline_active_runs" {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		return -1
	}

	var during atomic.Value
	measure := &funcExecutor{typ: "gauge", fn: func(context.Context, *nodes.Request, int) (nodes.Output, error) {
		during.Store(activeRuns())
		return nodes.Output{}, nil
	}}
	e := newTestEngine(measure)
	e.metrics = telemetry.NewMetrics(reg)

	if _, err := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{node("a", "gauge")}}, ExecuteOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := during.Load(); got != float64(1) {
		t.Errorf("expected 1 active run during execution, got %v", got)
	}
	if got := activeRuns(); got != 0 {
		t.Errorf("expected 0 active runs after execution, got %v", got)
	}
}

func TestExecute_PanicBecomesNodeError(t *testing.T) {
	panicky := &funcExecutor{typ: "panic", fn: func(context.Context, *nodes.Request, int) (nodes.Output, error) {
		panic("nil map")
	}}
	e := newTestEngine(panicky)

	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{node("a", "panic")}}, ExecuteOptions{})
	if !strings.Contains(result.Nodes["a"].Error, "panic") {
		t.Errorf("expected panic error, got %q", result.Nodes["a"].Error)
	}
}

func TestExecute_LogSinks(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	sink := engine.LogSinkFunc(func(entry domain.LogEntry) {
		mu.Lock()
		lines = append(lines, entry.Message)
		mu.Unlock()
	})

	e := newTestEngine(okExecutor("ok"))
	result, _ := e.Execute(context.Background(), &domain.Workflow{Nodes: []domain.Node{node("a", "ok")}}, ExecuteOptions{LogSinks: []engine.LogSink{sink}})

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != len(result.Logs) {
		t.Errorf("sink got %d lines, result has %d", len(lines), len(result.Logs))
	}
}
