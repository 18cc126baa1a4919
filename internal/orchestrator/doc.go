// Package orchestrator выполняет workflow.
//
// Engine отвечает за:
//   - Валидацию workflow и построение DAG
//   - Заполнение data bag данными активации триггеров
//   - Параллельный запуск готовых узлов (с ограничением MaxParallel)
//   - Разрешение конфигурации узла и вызов исполнителя
//   - Повторные попытки и on-error webhook
//   - Пропуск узлов, зависящих от упавших
//   - Итоговый ExecutionResult (статусы узлов, data bag, лог)
//
// Engine не хранит run и не знает про очереди: это делают api и worker.
package orchestrator
