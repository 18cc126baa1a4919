package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/nodes"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxParallel    = 8
	defaultWebhookTimeout = 10 * time.Second
)

const tracerName = "github.com/shaiso/Flowline/internal/orchestrator"

// Engine выполняет workflow.
//
// Engine не имеет состояния между вызовами Execute, кроме набора активных
// run. Один Engine обслуживает сколько угодно параллельных run.
type Engine struct {
	registry *nodes.Registry
	resolver *engine.Resolver

	// Providers — внешние зависимости исполнителей.
	db          nodes.DBPools
	chat        nodes.ChatModel
	images      nodes.ImageGenerator
	completions nodes.ChatCompleter
	mail        nodes.Mailer
	httpClient  *http.Client

	// Configuration
	maxParallel    int
	nodeTimeout    time.Duration
	webhookTimeout time.Duration

	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	// sleep ждёт перед повторной попыткой. Подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	// Active runs — run в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*RunState
	mu         sync.RWMutex
}

// Config — конфигурация Engine.
type Config struct {
	// Registry — исполнители узлов (default: nodes.DefaultRegistry).
	Registry *nodes.Registry

	// Resolver — разрешение плейсхолдеров (default: с Credentials).
	Resolver *engine.Resolver

	// Providers
	Credentials engine.CredentialStore
	DB          nodes.DBPools
	Chat        nodes.ChatModel
	Images      nodes.ImageGenerator
	Completions nodes.ChatCompleter
	Mail        nodes.Mailer
	HTTPClient  *http.Client

	// MaxParallel — сколько узлов одного run выполняются одновременно (default: 8).
	MaxParallel int

	// NodeTimeout — таймаут одной попытки, если у узла нет timeoutMs. 0 — без таймаута.
	NodeTimeout time.Duration

	// WebhookTimeout — таймаут on-error webhook (default: 10s).
	WebhookTimeout time.Duration

	// Metrics — Prometheus метрики. nil — без метрик.
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = nodes.DefaultRegistry(httpClient)
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = engine.NewResolver(engine.WithCredentialStore(cfg.Credentials))
	}

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	webhookTimeout := cfg.WebhookTimeout
	if webhookTimeout <= 0 {
		webhookTimeout = defaultWebhookTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		registry:       registry,
		resolver:       resolver,
		db:             cfg.DB,
		chat:           cfg.Chat,
		images:         cfg.Images,
		completions:    cfg.Completions,
		mail:           cfg.Mail,
		httpClient:     httpClient,
		maxParallel:    maxParallel,
		nodeTimeout:    cfg.NodeTimeout,
		webhookTimeout: webhookTimeout,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer(tracerName),
		logger:         logger,
		sleep:          sleepContext,
		now:            time.Now,
		activeRuns:     make(map[uuid.UUID]*RunState),
	}
}

// Registry возвращает реестр исполнителей (для валидации без запуска).
func (e *Engine) Registry() *nodes.Registry {
	return e.registry
}

// ExecuteOptions — параметры одного run.
type ExecuteOptions struct {
	// RunID — ID run. Пустой — сгенерировать.
	RunID uuid.UUID

	// UserID — от чьего имени выполняется run (поиск credentials).
	// Пустой — Workflow.UserID.
	UserID string

	// Simulation — режим симуляции: никаких внешних эффектов.
	Simulation bool

	// InitialData — данные активации, ключ — ID узла.
	// Ключи, не совпадающие с ID узлов, игнорируются.
	InitialData map[string]any

	// LogSinks получают записи серверного лога по мере появления.
	LogSinks []engine.LogSink
}

// runContext — всё, что нужно узлам одного run.
type runContext struct {
	id     uuid.UUID
	wf     *domain.Workflow
	state  *RunState
	bag    *engine.DataBag
	logs   *engine.LogSequence
	exec   *nodes.ExecutionContext
	result *domain.ExecutionResult
	logger *slog.Logger
}

// Execute выполняет workflow и возвращает результат.
//
// Ошибка возвращается только для ошибок уровня run: невалидный граф
// (ErrInvalidWorkflow) и отмена контекста (ErrRunCancelled). В обоих
// случаях результат тоже возвращается. Ошибки узлов — это данные
// в ExecutionResult.Nodes.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow, opts ExecuteOptions) (*domain.ExecutionResult, error) {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	userID := opts.UserID
	if userID == "" && wf != nil {
		userID = wf.UserID
	}

	result := &domain.ExecutionResult{
		ID:         runID,
		UserID:     userID,
		Simulation: opts.Simulation,
		Status:     domain.RunStatusRunning,
		Nodes:      make(map[string]*domain.NodeResult),
		CreatedAt:  e.now(),
	}
	if wf != nil {
		result.WorkflowID = wf.ID
	}

	logger := telemetry.WithRunID(e.logger, runID.String())
	if wf != nil {
		logger = telemetry.WithWorkflowID(logger, wf.ID.String())
	}

	sinks := append([]engine.LogSink{engine.LogSinkFunc(telemetry.RunLogMirror(logger))}, opts.LogSinks...)
	logs := engine.NewLogSequence(sinks...)

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("run.id", runID.String()),
		attribute.Bool("run.simulation", opts.Simulation),
	))
	defer span.End()

	dag, err := engine.Validate(wf, e.registry)
	if err != nil {
		logs.Error("[ENGINE/main] Critical graph error: %v", err)
		result.MarkFailed(err.Error())
		result.Logs = logs.Entries()
		e.metrics.RunFinished(string(result.Status), opts.Simulation, 0)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("workflow rejected", "error", err)
		return result, fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	span.SetAttributes(attribute.Int("workflow.nodes", dag.Size()))

	state := NewRunState(dag)
	if err := e.addActiveRun(runID, state); err != nil {
		return nil, err
	}
	defer e.removeActiveRun(runID)

	result.MarkRunning()
	for _, v := range dag.Order {
		result.Nodes[v.ID] = &domain.NodeResult{
			NodeID: v.ID,
			Type:   v.Node.Type,
			Status: domain.NodeStatusPending,
		}
	}

	mode := "LIVE"
	if opts.Simulation {
		mode = "SIMULATION"
	}
	logs.Info("[ENGINE/main] Starting execution in %s mode for user %s.", mode, userID)
	logger.Info("run started", "nodes", dag.Size(), "simulation", opts.Simulation)

	bag := engine.NewDataBag()
	for id, value := range opts.InitialData {
		if dag.GetVertex(id) != nil {
			bag.Seed(id, value)
		}
	}

	rc := &runContext{
		id:     runID,
		wf:     wf,
		state:  state,
		bag:    bag,
		logs:   logs,
		result: result,
		logger: logger,
		exec: &nodes.ExecutionContext{
			UserID:      userID,
			Simulation:  opts.Simulation,
			DB:          e.db,
			Chat:        e.chat,
			Images:      e.images,
			Completions: e.completions,
			Mail:        e.mail,
			HTTPClient:  e.httpClient,
		},
	}

	e.dispatch(ctx, rc)

	if ctx.Err() != nil {
		for _, v := range state.PendingNodes() {
			e.skipNode(rc, v.Node, reasonCancelled, true)
		}
		logs.Error("[ENGINE/main] Execution cancelled: %v", ctx.Err())
		result.MarkCancelled(ctx.Err().Error())
	} else {
		result.MarkFinished()
		if result.Status == domain.RunStatusSucceeded {
			logs.Success("[ENGINE/main] Execution finished with status %s.", result.Status)
		} else {
			logs.Error("[ENGINE/main] Execution finished with status %s. Failed nodes: %v", result.Status, result.FailedNodes())
		}
	}

	result.Data = bag.Snapshot()
	result.Logs = logs.Entries()

	stats := state.Stats()
	e.metrics.RunFinished(string(result.Status), opts.Simulation, result.Duration())
	span.SetAttributes(attribute.String("run.status", string(result.Status)))
	logger.Info("run finished",
		"status", result.Status,
		"duration", result.Duration(),
		"succeeded", stats.SucceededNodes,
		"failed", stats.FailedNodes,
		"skipped", stats.SkippedNodes,
	)

	if result.Status == domain.RunStatusCancelled {
		span.SetStatus(codes.Error, ErrRunCancelled.Error())
		return result, fmt.Errorf("%w: %w", ErrRunCancelled, ctx.Err())
	}
	return result, nil
}

// Validate проверяет workflow без запуска.
func (e *Engine) Validate(wf *domain.Workflow) error {
	if _, err := engine.Validate(wf, e.registry); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	return nil
}

// dispatch запускает готовые узлы и применяет их результаты, пока есть работа.
//
// Все изменения RunState, data bag и ExecutionResult происходят в этой
// горутине. Горутины узлов только выполняют узел и возвращают outcome.
func (e *Engine) dispatch(ctx context.Context, rc *runContext) {
	outcomes := make(chan *nodeOutcome)
	inFlight := 0

	for {
		if ctx.Err() == nil {
			inFlight += e.launchReady(ctx, rc, outcomes, e.maxParallel-inFlight)
		}
		if inFlight == 0 {
			return
		}

		outcome := <-outcomes
		inFlight--
		e.apply(rc, outcome)
	}
}

// launchReady пропускает заблокированные узлы и запускает до slots готовых.
// Возвращает количество запущенных.
func (e *Engine) launchReady(ctx context.Context, rc *runContext, outcomes chan<- *nodeOutcome, slots int) int {
	launched := 0
	for {
		progressed := false
		for _, v := range rc.state.GetReadyNodes() {
			if rc.state.IsBlocked(v) {
				rc.logs.Info("[ENGINE/main] Skipping node %s due to upstream failure.", v.Node.DisplayName())
				e.skipNode(rc, v.Node, reasonUpstreamFailed, true)
				progressed = true
				continue
			}
			if launched >= slots {
				continue
			}

			rc.state.MarkNodeRunning(v.ID)
			rc.result.Nodes[v.ID].Status = domain.NodeStatusRunning
			launched++

			node := v.Node
			go func() {
				outcomes <- e.runNode(ctx, rc, node)
			}()
		}
		if !progressed {
			return launched
		}
	}
}

func (e *Engine) addActiveRun(runID uuid.UUID, state *RunState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.activeRuns[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunAlreadyActive, runID)
	}
	e.activeRuns[runID] = state
	e.metrics.SetActiveRuns(len(e.activeRuns))
	return nil
}

func (e *Engine) removeActiveRun(runID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.activeRuns, runID)
	e.metrics.SetActiveRuns(len(e.activeRuns))
}

// sleepContext ждёт d или отмены контекста.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
