package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/Flowline/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), WithRunID(logger, "run-1"))
	FromContext(ctx).Info("hello")

	if !strings.Contains(buf.String(), "run_id=run-1") {
		t.Errorf("expected run_id in output, got %q", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected default logger")
	}
}

func TestRunLogMirror(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mirror := RunLogMirror(logger)

	mirror(domain.LogEntry{Message: "quiet", Type: domain.LogTypeInfo})
	mirror(domain.LogEntry{Message: "node failed", Type: domain.LogTypeError})

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info entries should be debug level, got %q", out)
	}
	if !strings.Contains(out, "node failed") {
		t.Errorf("error entries should be warn level, got %q", out)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunFinished("SUCCEEDED", true, time.Second)
	m.NodeFinished("httpRequest", "success", 10*time.Millisecond)
	m.NodeFinished("httpRequest", "error", 0)
	m.NodeRetried("httpRequest")
	m.WebhookDelivered("sent")
	m.HTTPRequest("/api/v1/runs", 404)
	m.SetActiveRuns(2)
	m.SetActiveRuns(1)

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("SUCCEEDED", "simulation")); got != 1 {
		t.Errorf("runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.nodesTotal.WithLabelValues("httpRequest", "error")); got != 1 {
		t.Errorf("node_executions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequestTotal.WithLabelValues("/api/v1/runs", "4xx")); got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeRuns); got != 1 {
		t.Errorf("active_runs = %v, want 1", got)
	}

	// nil-получатель не паникует
	var none *Metrics
	none.RunFinished("FAILED", false, 0)
	none.NodeRetried("x")
	none.SetActiveRuns(3)
}
