// Flowline Worker — выполняет workflow из очереди executions.requested.
//
// Worker:
//   - Получает запросы на выполнение из RabbitMQ
//   - Загружает workflow и выполняет его движком
//   - Пишет живой лог run в Redis
//   - Сохраняет результат и публикует execution.completed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Flowline/internal/app"
	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
	"github.com/shaiso/Flowline/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-worker")
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	credentials, err := app.NewCredentialRepo(pool, cfg.Credentials)
	if err != nil {
		logger.Error("invalid credential store config", "error", err)
		os.Exit(1)
	}

	deps := app.EngineDeps{Pool: pool, Metrics: telemetry.NewMetrics(nil), Logger: logger}
	if credentials != nil {
		deps.Credentials = credentials
	}
	eng := app.NewEngine(ctx, cfg, deps)
	defer eng.Close()

	conn, err := app.OpenQueue(ctx, cfg.AMQP, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	wcfg := worker.Config{
		Workflows:   repo.NewWorkflowRepo(pool),
		Runs:        repo.NewRunRepo(pool),
		Executor:    eng,
		Publisher:   mq.NewPublisher(conn, logger),
		Conn:        conn,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      logger,
	}
	liveLog, closeRedis := app.OpenRunLog(ctx, cfg.Redis, logger)
	defer closeRedis()
	if liveLog != nil {
		wcfg.OpenLog = func(runID uuid.UUID) worker.LiveSink { return liveLog.Open(runID) }
	}

	w := worker.New(wcfg)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx, cfg.Ops(cfg.Worker.OpsAddr), app.OpsMux(startTime), logger)
	})
	if err := g.Wait(); err != nil {
		logger.Error("ops server error", "error", err)
	}

	w.Stop()
	logger.Info("flowline-worker stopped")
}
