// Flowline API — HTTP сервер: синхронное выполнение workflow,
// хранилище workflows, очередь выполнений, webhook-триггеры,
// история runs с живым логом и cron-расписания.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/api"
	"github.com/shaiso/Flowline/internal/app"
	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-api")

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

	metrics := telemetry.NewMetrics(nil)

	deps := app.EngineDeps{Pool: pool, Metrics: metrics, Logger: logger}
	apiCfg := api.Config{
		Workflows: repo.NewWorkflowRepo(pool),
		Runs:      repo.NewRunRepo(pool),
		Schedules: repo.NewScheduleRepo(pool),
		Metrics:   metrics,
		Logger:    logger,
	}
	if credentials != nil {
		deps.Credentials = credentials
		apiCfg.Credentials = credentials
	}

	eng := app.NewEngine(ctx, cfg, deps)
	defer eng.Close()
	apiCfg.Executor = eng
	apiCfg.NodeTypes = eng.Registry()

	// RabbitMQ: без брокера работает только синхронное выполнение
	conn, err := app.OpenQueue(ctx, cfg.AMQP, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, async executions disabled", "error", err)
	} else {
		defer conn.Close()
		apiCfg.Publisher = mq.NewPublisher(conn, logger)
	}

	liveLog, closeRedis := app.OpenRunLog(ctx, cfg.Redis, logger)
	defer closeRedis()
	if liveLog != nil {
		apiCfg.LiveLog = liveLog
		apiCfg.OpenLog = func(runID uuid.UUID) api.LiveSink { return liveLog.Open(runID) }
	}

	handler := api.NewHandler(apiCfg)
	mux := app.OpsMux(startTime)
	handler.RegisterRoutes(mux)

	if err := app.Serve(ctx, cfg.HTTP, mux, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("flowline-api stopped")
}
