// Flowline Scheduler — запускает workflow по cron-расписанию.
//
// Несколько реплик могут работать одновременно: каждое срабатывание
// забирает ровно одна реплика (сравнение next_due_at в UPDATE).
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Flowline/internal/app"
	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/scheduler"
	"github.com/shaiso/Flowline/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting flowline-scheduler")
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

	conn, err := app.OpenQueue(ctx, cfg.AMQP, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	sched := scheduler.New(scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Runs:      repo.NewRunRepo(pool),
		Publisher: mq.NewPublisher(conn, logger),
		Logger:    logger,
		BatchSize: cfg.Scheduler.BatchSize,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sched.Run(gctx, cfg.Scheduler.Interval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return app.Serve(gctx, cfg.Ops(cfg.Scheduler.OpsAddr), app.OpsMux(startTime), logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("flowline-scheduler stopped")
}
