// Package api содержит HTTP API сервер Flowline.
//
// Структура:
//   - handler.go           — Handler с DI (хранилища, движок, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (recovery, logging, metrics)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - execution_handler.go — синхронное выполнение, очередь, webhook-триггеры
//   - workflow_handler.go  — обработчики для /workflows
//   - run_handler.go       — обработчики для /runs и живого лога
//   - schedule_handler.go  — обработчики для /schedules
//   - credential_handler.go — секреты пользователей
//
// Ответы имеют вид {"data": ...} или {"error": {"code", "message"}}.
package api
