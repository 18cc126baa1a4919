// Package mq — инфраструктура RabbitMQ для асинхронных выполнений.
//
// Топология:
//
//	flowline.executions (direct)
//	├── executions.requested [execution.requested]  → worker, DLQ: dlq.executions
//	└── executions.completed [execution.completed]  → внешние подписчики
//	flowline.dlq (direct)
//	└── dlq.executions [execution.dead]              → ручной разбор
//
// Сообщения — JSON-конверт Message с типом и payload:
// domain.ExecutionRequest для execution.requested и ExecutionCompleted
// для execution.completed.
package mq
