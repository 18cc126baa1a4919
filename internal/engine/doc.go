// Package engine содержит ядро разрешения конфигурации и структуры графа.
//
// Включает:
//   - template.go  — токенизатор плейсхолдеров {{ path }} в AST сегментов
//   - resolver.go  — разрешение плейсхолдеров по слоям источников
//   - config.go    — двухфазное разрешение конфигурации узла
//   - condition.go — вычисление условий
//   - databag.go   — data bag run (write-once) и серверный лог (append-only)
//   - dag.go       — построение графа из связей и топологический порядок
//   - parser.go    — валидация Workflow
//
// Engine не выполняет узлы сам: это делает orchestrator,
// используя исполнители из пакета nodes.
package engine
