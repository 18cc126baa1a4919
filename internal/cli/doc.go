// Package cli реализует инструмент командной строки Flowline.
//
// # Обзор
//
// CLI работает в двух режимах:
//   - Локально: run и validate выполняют и проверяют файл workflow
//     (JSON или YAML) в своём процессе, без сервера. История локальных
//     run пишется в SQLite (history).
//   - Через HTTP API: workflows, runs и schedules управляют
//     сохранёнными workflows, run на сервере и cron-расписаниями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Flowline API. Инкапсулирует запросы, разбор
// ответов (DataResponse, ListResponse, ErrorResponse) и ошибки API
// (APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(ctx, cli.ListRunsOpts{Status: "FAILED"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом -o json
//
// Данные выводятся в stdout, лог run и сообщения — в stderr.
// Это позволяет использовать pipe: flowline run wf.yaml -o json | jq .status
//
// ## Commands
//
//   - run FILE [--live] [--user] [--data NODE=JSON]
//   - validate FILE
//   - history [RUN_ID]
//   - workflows: list, get, create, delete, execute
//   - runs: list, get, logs [--follow]
//   - schedules: list, create, delete, enable, disable
//
// Группы создаются фабричными функциями (NewWorkflowsCmd и т.д.),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags. Локальные команды
// получают EngineFunc, который собирает движок из конфигурации процесса.
package cli
