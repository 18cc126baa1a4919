package app

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/orchestrator"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.Engine{
			MaxParallel:    2,
			WebhookTimeout: time.Second,
			HTTPTimeout:    time.Second,
		},
		AI:    config.AI{Model: "gpt-4o-mini"},
		Image: config.Image{Model: "dall-e-3"},
	}
}

func TestNewEngine_WithoutProviders(t *testing.T) {
	eng := NewEngine(context.Background(), testConfig(), EngineDeps{Logger: quietLogger()})
	defer eng.Close()

	wf := &domain.Workflow{
		Nodes: []domain.Node{
			{
				ID: "ai", Type: domain.NodeTypeAITask,
				Config:      map[string]any{"prompt": "hello"},
				RetryConfig: &domain.RetryConfig{Attempts: 3},
			},
			{ID: "up", Type: domain.NodeTypeToUpperCase, Config: map[string]any{"inputString": "abc"}},
		},
	}

	result, err := eng.Execute(context.Background(), wf, orchestrator.ExecuteOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Nodes["up"].Status != domain.NodeStatusSuccess {
		t.Errorf("up status = %s", result.Nodes["up"].Status)
	}
	ai := result.Nodes["ai"]
	if ai.Status != domain.NodeStatusError || !strings.Contains(ai.Error, "not configured") {
		t.Errorf("ai node = %s %q, want provider error", ai.Status, ai.Error)
	}
	if len(ai.Attempts) != 1 {
		t.Errorf("missing provider must not be retried, got %d attempts", len(ai.Attempts))
	}
}

func TestImageConfig_FallsBackToAIKey(t *testing.T) {
	cfg := testConfig()
	cfg.AI.APIKey = "ai-key"
	cfg.AI.BaseURL = "https://llm.local/v1"

	got := imageConfig(cfg)
	if got.APIKey != "ai-key" || got.BaseURL != "https://llm.local/v1" {
		t.Errorf("unexpected fallback: %+v", got)
	}

	cfg.Image.APIKey = "img-key"
	got = imageConfig(cfg)
	if got.APIKey != "img-key" || got.BaseURL != "" {
		t.Errorf("own image key must not inherit the AI base URL: %+v", got)
	}
}

func TestNewCredentialRepo(t *testing.T) {
	store, err := NewCredentialRepo(nil, config.Credentials{})
	if err != nil || store != nil {
		t.Errorf("empty key: store=%v err=%v, want nil/nil", store, err)
	}

	key := hex.EncodeToString(make([]byte, 32))
	if store, err := NewCredentialRepo(nil, config.Credentials{Key: key}); err != nil || store != nil {
		t.Errorf("no pool: store=%v err=%v, want nil/nil", store, err)
	}
}

func TestOpenRunLog_Disabled(t *testing.T) {
	store, closeFn := OpenRunLog(context.Background(), config.Redis{DisableLog: true}, quietLogger())
	if store != nil {
		t.Error("disabled run log must return nil store")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestOpsMux(t *testing.T) {
	srv := httptest.NewServer(OpsMux(time.Now()))
	defer srv.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, config.HTTP{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), quietLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
