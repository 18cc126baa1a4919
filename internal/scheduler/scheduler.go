package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
)

// ScheduleStore — хранилище schedules.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	ClaimRun(ctx context.Context, s *domain.Schedule, prevDue time.Time) (bool, error)
}

// RunQueue создаёт запись run в статусе QUEUED.
type RunQueue interface {
	CreateQueued(ctx context.Context, req domain.ExecutionRequest) error
}

// RequestPublisher ставит выполнение в очередь брокера.
type RequestPublisher interface {
	PublishExecutionRequested(ctx context.Context, req domain.ExecutionRequest) error
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	runs      RunQueue
	publisher RequestPublisher
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Runs      RunQueue
	Publisher RequestPublisher
	Logger    *slog.Logger

	// BatchSize — сколько schedules обрабатывается за тик (default: 100).
	BatchSize int
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		runs:      cfg.Runs,
		publisher: cfg.Publisher,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Tick выполняет один тик планировщика.
//
// Ошибка одного schedule не блокирует обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	due, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	var enqueued int
	for i := range due {
		sched := &due[i]
		ok, err := s.fire(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to fire schedule", "schedule_id", sched.ID, "error", err)
			continue
		}
		if ok {
			enqueued++
		}
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "enqueued", enqueued)
	return nil
}

// fire запускает один schedule.
//
//  1. Следующее время запуска (пропущенные срабатывания не догоняются)
//  2. ClaimRun: запуск забирает ровно одна реплика
//  3. Запись run QUEUED
//  4. execution.requested с активацией scheduleTrigger
//
// Claim идёт до создания run: сбой между шагами теряет одно
// срабатывание, но никогда не дублирует его.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	if sched.NextDueAt == nil {
		return false, nil
	}
	prevDue := *sched.NextDueAt

	// 1. Следующее время
	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return false, err
	}

	// 2. Claim
	runID := uuid.New()
	sched.RecordRun(runID, nextDue)
	claimed, err := s.schedules.ClaimRun(ctx, sched, prevDue)
	if err != nil {
		return false, err
	}
	if !claimed {
		s.logger.Debug("schedule claimed by another replica", "schedule_id", sched.ID)
		return false, nil
	}

	// 3. Run
	req := domain.ExecutionRequest{
		RunID:       runID,
		WorkflowID:  sched.WorkflowID,
		UserID:      sched.UserID,
		Simulation:  sched.Simulation,
		InitialData: sched.Activation(prevDue),
		Source:      "schedule",
	}
	if err := s.runs.CreateQueued(ctx, req); err != nil {
		return false, fmt.Errorf("create run: %w", err)
	}

	// 4. Очередь
	if err := s.publisher.PublishExecutionRequested(ctx, req); err != nil {
		return false, fmt.Errorf("publish execution request: %w", err)
	}

	s.logger.Info("schedule fired",
		"schedule_id", sched.ID,
		"workflow_id", sched.WorkflowID,
		"node_id", sched.NodeID,
		"run_id", runID,
		"next_due_at", nextDue,
	)
	return true, nil
}

// Run вызывает Tick с интервалом interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
