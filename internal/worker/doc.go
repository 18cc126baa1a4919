// Package worker выполняет workflow, поставленные в очередь.
//
// # Обзор
//
// API (ручной запуск, webhook-триггер) и scheduler публикуют
// domain.ExecutionRequest в очередь executions.requested. Worker:
//
//   - забирает запрос (Concurrency потребителей на экземпляр)
//   - загружает workflow и сохраняет run в статусе RUNNING
//   - выполняет его через orchestrator.Engine, дублируя лог в Redis
//   - сохраняет ExecutionResult и публикует execution.completed
//
// # Подтверждение сообщений
//
// Ошибки узлов и невалидный граф — это результат run, сообщение
// подтверждается. Инфраструктурные ошибки (БД недоступна) возвращают
// сообщение в очередь один раз, затем оно уходит в DLQ. Удалённый
// workflow сразу отправляет сообщение в DLQ.
//
// Повторная доставка уже завершённого run подтверждается без выполнения.
//
// # Запуск
//
//	w := worker.New(worker.Config{
//	    Workflows: workflowRepo,
//	    Runs:      runRepo,
//	    Executor:  engine,
//	    Publisher: publisher,
//	    Conn:      conn,
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package worker
