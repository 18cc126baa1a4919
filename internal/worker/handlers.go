package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/mq"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// HandleMessage — обработчик сообщений execution.requested.
func (w *Worker) HandleMessage(ctx context.Context, msg *mq.Message) error {
	req, err := mq.DecodePayload[domain.ExecutionRequest](msg)
	if err != nil {
		return err
	}
	return w.Process(ctx, req)
}

// Process выполняет один запрос на выполнение.
//
//  1. Повторная доставка завершённого run подтверждается без выполнения
//  2. Загрузка workflow; удалённый workflow → run FAILED, сообщение в DLQ
//  3. Сохранение RUNNING, чтобы клиент видел прогресс
//  4. Выполнение с живым логом
//  5. Сохранение результата и публикация execution.completed
//
// Остановка воркера посреди run возвращает ErrInterrupted: сообщение
// уходит обратно в очередь, а run — в статус QUEUED.
func (w *Worker) Process(ctx context.Context, req domain.ExecutionRequest) error {
	logger := telemetry.WithRunID(w.logger, req.RunID.String())

	// 1. Идемпотентность по RunID
	if existing, err := w.runs.GetByID(ctx, req.RunID); err == nil && existing.IsFinished() {
		logger.Info("run already finished, skipping redelivery", "status", existing.Status)
		return nil
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("get run: %w", err)
	}

	// 2. Workflow
	wf, err := w.workflows.GetByID(ctx, req.WorkflowID)
	if errors.Is(err, repo.ErrNotFound) {
		failed := newRun(req)
		failed.MarkFailed(ErrWorkflowNotFound.Error())
		w.finish(ctx, req, failed)
		return fmt.Errorf("%w: %w: %s", mq.ErrPermanent, ErrWorkflowNotFound, req.WorkflowID)
	}
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}

	// 3. RUNNING
	running := newRun(req)
	running.MarkRunning()
	if err := w.save(ctx, running); err != nil {
		return err
	}

	logger.Info("run picked up", "workflow_id", wf.ID, "source", req.Source, "simulation", req.Simulation)

	// 4. Выполнение
	var sinks []engine.LogSink
	var live LiveSink
	if w.openLog != nil {
		live = w.openLog(req.RunID)
		sinks = append(sinks, live)
	}

	result, execErr := w.executor.Execute(ctx, wf, orchestrator.ExecuteOptions{
		RunID:       req.RunID,
		UserID:      req.UserID,
		Simulation:  req.Simulation,
		InitialData: req.InitialData,
		LogSinks:    sinks,
	})

	if live != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.saveTimeout)
		if err := live.Close(closeCtx); err != nil {
			logger.Warn("close live log", "error", err)
		}
		cancel()
	}

	switch {
	case errors.Is(execErr, orchestrator.ErrRunAlreadyActive):
		logger.Info("run already active in this worker, skipping duplicate delivery")
		return nil

	case errors.Is(execErr, orchestrator.ErrRunCancelled) && ctx.Err() != nil:
		requeued := newRun(req)
		if err := w.save(ctx, requeued); err != nil {
			logger.Error("reset interrupted run", "error", err)
		}
		return fmt.Errorf("%w: %w", ErrInterrupted, execErr)

	case execErr != nil && result == nil:
		return fmt.Errorf("execute run: %w", execErr)
	}

	// 5. Результат. Невалидный граф — тоже результат (FAILED), не ошибка доставки.
	w.finish(ctx, req, result)
	return nil
}

// newRun — запись run в статусе QUEUED по запросу.
func newRun(req domain.ExecutionRequest) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		ID:         req.RunID,
		WorkflowID: req.WorkflowID,
		UserID:     req.UserID,
		Simulation: req.Simulation,
		Status:     domain.RunStatusQueued,
		Nodes:      map[string]*domain.NodeResult{},
		CreatedAt:  time.Now(),
	}
}

// save сохраняет run. Контекст отвязан от отмены, чтобы итог run
// записался даже во время остановки.
func (w *Worker) save(ctx context.Context, run *domain.ExecutionResult) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.saveTimeout)
	defer cancel()

	if err := w.runs.Save(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (w *Worker) finish(ctx context.Context, req domain.ExecutionRequest, run *domain.ExecutionResult) {
	logger := telemetry.WithRunID(w.logger, run.ID.String())

	if err := w.save(ctx, run); err != nil {
		logger.Error("failed to save run result", "error", err)
	}

	if w.publisher == nil {
		return
	}

	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}
	ev := mq.ExecutionCompleted{
		RunID:      run.ID,
		WorkflowID: run.WorkflowID,
		Status:     run.Status,
		Error:      run.Error,
		Source:     req.Source,
		FinishedAt: finishedAt,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.saveTimeout)
	defer cancel()
	if err := w.publisher.PublishExecutionCompleted(pubCtx, ev); err != nil {
		logger.Warn("failed to publish completion", "error", err)
	}
}
