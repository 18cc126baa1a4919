package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/orchestrator"
)

const (
	defaultConcurrency = 4
	defaultSaveTimeout = 10 * time.Second
)

// WorkflowStore загружает workflow по ID.
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
}

// RunStore сохраняет и читает результаты выполнения.
type RunStore interface {
	Save(ctx context.Context, run *domain.ExecutionResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionResult, error)
}

// Executor выполняет workflow. Реализуется orchestrator.Engine.
type Executor interface {
	Execute(ctx context.Context, wf *domain.Workflow, opts orchestrator.ExecuteOptions) (*domain.ExecutionResult, error)
}

// CompletionPublisher публикует событие о завершении run.
type CompletionPublisher interface {
	PublishExecutionCompleted(ctx context.Context, ev mq.ExecutionCompleted) error
}

// LiveSink — живой хвост лога одного run.
type LiveSink interface {
	engine.LogSink
	Close(ctx context.Context) error
}

// Worker выполняет workflow из очереди executions.requested.
//
// Worker не хранит состояния между сообщениями: несколько экземпляров
// потребляют одну очередь и масштабируются горизонтально.
type Worker struct {
	workflows WorkflowStore
	runs      RunStore
	executor  Executor
	publisher CompletionPublisher
	openLog   func(runID uuid.UUID) LiveSink

	conn        *mq.Connection
	concurrency int
	saveTimeout time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	Workflows WorkflowStore
	Runs      RunStore
	Executor  Executor

	// Publisher — опционально; nil — события завершения не публикуются.
	Publisher CompletionPublisher

	// OpenLog — опционально; открывает живой лог run (Redis).
	OpenLog func(runID uuid.UUID) LiveSink

	// Conn — соединение с брокером (нужно только для Start).
	Conn *mq.Connection

	// Concurrency — сколько run выполняется параллельно (default: 4).
	Concurrency int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		workflows:   cfg.Workflows,
		runs:        cfg.Runs,
		executor:    cfg.Executor,
		publisher:   cfg.Publisher,
		openLog:     cfg.OpenLog,
		conn:        cfg.Conn,
		concurrency: concurrency,
		saveTimeout: defaultSaveTimeout,
		logger:      logger,
	}
}

// Start запускает Concurrency потребителей очереди executions.requested.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return ErrNoConnection
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "concurrency", w.concurrency)

	for i := range w.concurrency {
		consumer := mq.NewConsumer(w.conn, w.logger.With("consumer", i), mq.ConsumerConfig{
			Queue:   mq.QueueExecutionsRequested,
			Handler: w.HandleMessage,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	return nil
}

// Stop останавливает потребителей и ждёт завершения текущих run.
// Прерванные run возвращаются в очередь.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("worker stopped")
}
