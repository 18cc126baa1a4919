package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
)

// LogMessageExecutor — узел записи в лог run.
//
// Конфигурация: {"message": "status={{node2.response.status}}"}
// или {"logFullInput": true} — записать весь разрешённый input.
// Объекты печатаются как JSON с отступами.
//
// Выход: {"output": "<сообщение>"}.
type LogMessageExecutor struct{}

// NewLogMessageExecutor создаёт LogMessageExecutor.
func NewLogMessageExecutor() *LogMessageExecutor {
	return &LogMessageExecutor{}
}

// Type возвращает тип узла.
func (e *LogMessageExecutor) Type() domain.NodeType {
	return domain.NodeTypeLogMessage
}

// Execute пишет сообщение в лог.
func (e *LogMessageExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	var message any
	fullInput := GetConfigBool(req.Config, "logFullInput", false)
	if fullInput {
		message = req.Config[engine.InputKey]
	} else {
		message = req.Config["message"]
	}

	var text string
	switch m := message.(type) {
	case nil:
		text = ""
	case string:
		text = m
	case map[string]any, []any:
		b, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("format message: %w", err)
		}
		text = string(b)
	default:
		text = fmt.Sprint(m)
	}

	req.Logf("%s: %s", req.Display(), text)
	if fullInput {
		return Output{"output": message}, nil
	}
	return Output{"output": text}, nil
}

// ConditionalExecutor — узел conditionalLogic.
//
// Конфигурация: {"condition": "{{fetch.status}} == 200"}.
// Выход: {"result": true|false}.
type ConditionalExecutor struct{}

// NewConditionalExecutor создаёт ConditionalExecutor.
func NewConditionalExecutor() *ConditionalExecutor {
	return &ConditionalExecutor{}
}

// Type возвращает тип узла.
func (e *ConditionalExecutor) Type() domain.NodeType {
	return domain.NodeTypeConditionalLogic
}

// Execute вычисляет условие.
func (e *ConditionalExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	var condition string
	if v, ok := req.Config["condition"]; ok && v != nil {
		condition = fmt.Sprint(v)
	}

	result := engine.EvaluateCondition(condition, req.Display(), req.Logs)
	req.Logf("%s condition evaluated to %t.", req.Display(), result)
	return Output{"result": result}, nil
}

// DelayExecutor — узел задержки.
//
// Конфигурация: {"delayMs": 1500}. Ждёт только в live-режиме,
// ожидание прерывается отменой контекста.
//
// Выход: {"output": <input>}.
type DelayExecutor struct{}

// NewDelayExecutor создаёт DelayExecutor.
func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{}
}

// Type возвращает тип узла.
func (e *DelayExecutor) Type() domain.NodeType {
	return domain.NodeTypeDelay
}

// Execute выполняет задержку.
func (e *DelayExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	delayMs := GetConfigInt(req.Config, "delayMs")
	out := Output{"output": req.Config[engine.InputKey]}

	if req.Simulation() || delayMs <= 0 {
		req.Logf("Skipping delay of %dms.", delayMs)
		return out, nil
	}

	req.Logf("Waiting %dms.", delayMs)
	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, cancelled(ctx)
	case <-timer.C:
		return out, nil
	}
}
