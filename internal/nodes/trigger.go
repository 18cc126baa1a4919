package nodes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// TriggerExecutor — пассивный узел-триггер (webhookTrigger, scheduleTrigger).
//
// Триггер ничего не вызывает сам: механизм запуска (API webhook или scheduler)
// заранее кладёт данные активации в data bag под ID узла.
//
// Данные активации webhook:
//
//	{"triggered": true, "requestBody": {...}, "requestHeaders": {...}, "requestQuery": {...}}
//
// Данные активации schedule:
//
//	{"triggered": true, "scheduledAt": "2025-01-01T09:00:00Z"}
//
// Без активации: в live-режиме {"triggered": false},
// в симуляции — simulatedRequestBody/Headers/Query или simulated_config.
type TriggerExecutor struct {
	typ domain.NodeType
	now func() time.Time
}

// NewTriggerExecutor создаёт триггер указанного типа.
func NewTriggerExecutor(typ domain.NodeType) *TriggerExecutor {
	return &TriggerExecutor{typ: typ, now: time.Now}
}

// Type возвращает тип узла.
func (e *TriggerExecutor) Type() domain.NodeType {
	return e.typ
}

// Execute возвращает данные активации.
func (e *TriggerExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	if activation, ok := e.activation(req); ok {
		req.Logf("%s activated. Using trigger data from the caller.", req.Display())
		out := Output{"triggered": true}
		for k, v := range activation {
			out[k] = v
		}
		return out, nil
	}

	if !req.Simulation() {
		req.Logf("%s has no activation data. Not triggered.", req.Display())
		return Output{"triggered": false}, nil
	}

	req.Logf("%s using simulated trigger data.", req.Display())
	if sim, ok := req.Config["simulated_config"].(map[string]any); ok {
		out := Output{"triggered": true}
		for k, v := range sim {
			out[k] = v
		}
		return out, nil
	}

	out := Output{"triggered": true}
	switch e.typ {
	case domain.NodeTypeWebhookTrigger:
		out["requestBody"] = e.simulatedField(req, "simulatedRequestBody")
		out["requestHeaders"] = e.simulatedField(req, "simulatedRequestHeaders")
		out["requestQuery"] = e.simulatedField(req, "simulatedRequestQuery")
	case domain.NodeTypeScheduleTrigger:
		out["scheduledAt"] = e.now().UTC().Format(time.RFC3339)
	}
	return out, nil
}

// activation ищет данные активации в data bag.
func (e *TriggerExecutor) activation(req *Request) (map[string]any, bool) {
	if req.Bag == nil {
		return nil, false
	}
	raw, ok := req.Bag.Get(req.NodeID())
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	if triggered, ok := m["triggered"].(bool); ok {
		return m, triggered
	}
	if _, ok := m["requestBody"]; ok {
		return m, true
	}
	return nil, false
}

// simulatedField возвращает simulated-поле: JSON-строку разбирает, nil заменяет на {}.
func (e *TriggerExecutor) simulatedField(req *Request, key string) any {
	switch v := req.Config[key].(type) {
	case nil:
		return map[string]any{}
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			req.Logf("could not parse %s as JSON: %v", key, err)
			return map[string]any{}
		}
		return parsed
	default:
		return v
	}
}
