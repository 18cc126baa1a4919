package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/shaiso/Flowline/internal/domain"
)

// ParseJSONExecutor — узел разбора JSON.
//
// Конфигурация:
//
//	{
//	    "jsonString": "{{fetch.data}}",
//	    "path": "$.items[0].id"      // необязательно, "$." можно опустить
//	}
//
// Пустая строка даёт {}, уже разобранное значение проходит как есть.
// Выход: {"output": <значение>}.
type ParseJSONExecutor struct{}

// NewParseJSONExecutor создаёт ParseJSONExecutor.
func NewParseJSONExecutor() *ParseJSONExecutor {
	return &ParseJSONExecutor{}
}

// Type возвращает тип узла.
func (e *ParseJSONExecutor) Type() domain.NodeType {
	return domain.NodeTypeParseJSON
}

// Execute разбирает jsonString и извлекает path.
func (e *ParseJSONExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	var value any
	switch v := req.Config["jsonString"].(type) {
	case nil:
		return nil, invalidConfig(domain.NodeTypeParseJSON, "jsonString is required")
	case string:
		if strings.TrimSpace(v) == "" {
			value = map[string]any{}
			break
		}
		if err := json.Unmarshal([]byte(v), &value); err != nil {
			return nil, fmt.Errorf("invalid JSON string provided: %w", err)
		}
	default:
		value = v
	}

	path := GetConfigString(req.Config, "path")
	if path == "" {
		req.Logf("Parsed JSON for %s.", req.Display())
		return Output{"output": value}, nil
	}

	extracted, err := ExtractPath(value, path)
	if err != nil {
		return nil, err
	}
	req.Logf("Extracted path %q for %s.", path, req.Display())
	return Output{"output": extracted}, nil
}

// ExtractPath извлекает значение по пути вида $.a.b[0].c.
//
// Путь переводится в синтаксис gjson, каждый сегмент экранируется,
// поэтому "*", "?" и "#" в ключах — обычные символы.
func ExtractPath(value any, path string) (any, error) {
	segments := splitJSONPath(path)
	if len(segments) == 0 {
		return value, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode JSON for path %q: %w", path, err)
	}

	res := gjson.GetBytes(data, gjsonPath(segments))
	if !res.Exists() {
		return nil, fmt.Errorf("path %q not found in JSON", path)
	}
	return res.Value(), nil
}

// splitJSONPath разбивает путь на сегменты: "$.a.b[0]" → [a b 0].
func splitJSONPath(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")
	path = strings.TrimPrefix(path, ".")

	var segments []string
	for _, part := range strings.Split(path, ".") {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				segments = append(segments, part)
				break
			}
			if open > 0 {
				segments = append(segments, part[:open])
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				segments = append(segments, part[open+1:])
				break
			}
			segments = append(segments, strings.Trim(part[open+1:open+end], `'"`))
			part = part[open+end+1:]
		}
	}
	return segments
}

// gjsonPath собирает путь gjson из сегментов.
func gjsonPath(segments []string) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('.')
		}
		for j := 0; j < len(seg); j++ {
			if !isPlainPathChar(seg[j]) {
				b.WriteByte('\\')
			}
			b.WriteByte(seg[j])
		}
	}
	return b.String()
}

func isPlainPathChar(c byte) bool {
	return c > '~' || c == '_' || c == '-' || c == ':' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
