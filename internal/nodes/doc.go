// Package nodes содержит исполнителей типов узлов workflow.
//
// # Обзор
//
// Исполнитель получает уже разрешённую конфигурацию узла
// (engine.Resolver.ResolveNodeConfig), выполняет действие и возвращает Output,
// который orchestrator записывает в data bag под ID узла.
//
//	type Executor interface {
//	    Type() domain.NodeType
//	    Execute(ctx context.Context, req *Request) (Output, error)
//	}
//
// Request содержит:
//   - Node — определение узла
//   - Config — разрешённая конфигурация (с ключом "input")
//   - Exec — окружение run: пользователь, режим симуляции, провайдеры
//   - Bag — data bag (только чтение)
//   - Logs — серверный лог run
//
// # Симуляция
//
// В режиме симуляции исполнитель не делает внешних вызовов и возвращает
// simulated-поле конфигурации (simulated_config, simulatedOutput,
// simulatedResponse, ...) или заготовленный ответ. Каждая запись лога
// получает префикс "[NODE <TYPE>] SIMULATION: ".
//
// # Провайдеры
//
// Внешние системы подключаются через интерфейсы ChatModel, ImageGenerator,
// ChatCompleter, Mailer и DBPools. Реализации лежат в internal/providers
// и internal/repo, в тестах используются фейки.
//
// # Registry
//
//	registry := nodes.DefaultRegistry(httpClient)
//	exec, err := registry.Get(node.Type)   // "databaseQuery" → dbQuery
//
// Registry реализует engine.NodeTypeSet: workflow с неизвестным типом
// отклоняется при валидации.
package nodes
