package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CredentialStore — хранилище секретов пользователя.
type CredentialStore interface {
	// GetCredential возвращает значение секрета name пользователя userID.
	// found=false, если секрета нет.
	GetCredential(ctx context.Context, userID, name string) (value string, found bool, err error)
}

// Суффиксы переменных окружения, проверяемые для credential.<name>
// после самого <name>, в этом порядке.
var credentialEnvSuffixes = []string{"", "_API_KEY", "_SECRET", "_TOKEN"}

// Resolver разрешает плейсхолдеры {{ path }}.
//
// Порядок источников (первое совпадение побеждает):
//  1. дополнительные контексты (input, контекст ошибки, ...)
//  2. credential.<name> — хранилище секретов, затем переменные окружения
//  3. env.<name> — переменная окружения
//  4. data bag — первый сегмент пути это ID узла
type Resolver struct {
	credentials CredentialStore
	lookupEnv   func(string) (string, bool)
}

// ResolverOption настраивает Resolver.
type ResolverOption func(*Resolver)

// WithCredentialStore задаёт хранилище секретов.
func WithCredentialStore(cs CredentialStore) ResolverOption {
	return func(r *Resolver) {
		r.credentials = cs
	}
}

// WithLookupEnv подменяет чтение переменных окружения (для тестов).
func WithLookupEnv(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

// NewResolver создаёт Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveValue разрешает плейсхолдеры в значении.
//
// Не-строки возвращаются без изменений. Неразрешённые плейсхолдеры
// остаются в строке как есть, о каждом пишется одна info-запись в лог.
// Если вся строка — один плейсхолдер, результат подстановки разбирается
// как JSON (числа, объекты и bool сохраняют тип).
func (r *Resolver) ResolveValue(ctx context.Context, value any, bag *DataBag, logs *LogSequence, userID string, contexts map[string]any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}

	tpl := ParseTemplate(s)
	if tpl.Placeholders() == 0 {
		return s
	}

	var out strings.Builder
	for _, seg := range tpl.Segments {
		if seg.Kind == SegmentLiteral {
			out.WriteString(seg.Text)
			continue
		}

		v, found, note := r.lookup(ctx, seg.Path, bag, logs, userID, contexts)
		if !found {
			if note != "" {
				logs.Info("[RESOLVE_VALUE] Could not resolve placeholder '%s' (%s). Leaving it as literal.", seg.Text, note)
			} else {
				logs.Info("[RESOLVE_VALUE] Could not resolve placeholder '%s'. Leaving it as literal.", seg.Text)
			}
			out.WriteString(seg.Text)
			continue
		}
		out.WriteString(stringify(v))
	}

	result := out.String()
	if tpl.IsSinglePlaceholder() {
		var parsed any
		if err := json.Unmarshal([]byte(result), &parsed); err == nil {
			return parsed
		}
	}
	return result
}

// lookup ищет значение пути по источникам в порядке приоритета.
// note поясняет промах, если источник был выбран, но значения не нашлось.
func (r *Resolver) lookup(ctx context.Context, path []string, bag *DataBag, logs *LogSequence, userID string, contexts map[string]any) (value any, found bool, note string) {
	// 1. Дополнительные контексты
	if root, ok := contexts[path[0]]; ok {
		if v, ok := walk(root, path[1:]); ok {
			return v, true, ""
		}
	}

	// 2. credential.<name>
	if path[0] == "credential" && len(path) > 1 {
		name := strings.Join(path[1:], ".")
		v, ok, note := r.lookupCredential(ctx, name, logs, userID)
		if ok {
			return v, true, ""
		}
		return nil, false, note
	}

	// 3. env.<name>
	if path[0] == "env" && len(path) > 1 {
		name := envName(strings.Join(path[1:], "."))
		if v, ok := r.lookupEnv(name); ok {
			return v, true, ""
		}
		return nil, false, fmt.Sprintf("environment variable %s is not set", name)
	}

	// 4. Data bag
	if root, ok := bag.lookup(path[0]); ok {
		if v, ok := walk(root, path[1:]); ok {
			return v, true, ""
		}
	}
	return nil, false, ""
}

// lookupCredential ищет секрет в хранилище, затем в переменных окружения.
func (r *Resolver) lookupCredential(ctx context.Context, name string, logs *LogSequence, userID string) (string, bool, string) {
	var storeErr error
	if r.credentials != nil {
		v, ok, err := r.credentials.GetCredential(ctx, userID, name)
		switch {
		case err != nil:
			storeErr = err
		case ok:
			logs.Info("[RESOLVE_VALUE] Credential '%s' resolved from credential store.", name)
			return v, true, ""
		}
	}

	for _, suffix := range credentialEnvSuffixes {
		envKey := name + suffix
		if v, ok := r.lookupEnv(envKey); ok {
			logs.Info("[RESOLVE_VALUE] Credential '%s' resolved from environment variable '%s'.", name, envKey)
			return v, true, ""
		}
	}

	if storeErr != nil {
		return "", false, fmt.Sprintf("credential '%s' not found: credential store error: %v", name, storeErr)
	}
	return "", false, fmt.Sprintf("credential '%s' not found in credential store or environment", name)
}

// lookup — безопасный для nil доступ к bag.
func (b *DataBag) lookup(nodeID string) (any, bool) {
	if b == nil {
		return nil, false
	}
	return b.Get(nodeID)
}

// walk спускается по пути в map/slice. Любой отсутствующий сегмент — промах.
func walk(v any, path []string) (any, bool) {
	cur := v
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case map[string]string:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, ok := index(key, len(node))
			if !ok {
				return nil, false
			}
			cur = node[idx]
		case []map[string]any:
			idx, ok := index(key, len(node))
			if !ok {
				return nil, false
			}
			cur = node[idx]
		case []string:
			idx, ok := index(key, len(node))
			if !ok {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func index(key string, n int) (int, bool) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// envName приводит имя к виду переменной окружения: API.base-url → API_BASE_URL.
func envName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// stringify превращает значение во фрагмент строки.
// Объекты и массивы сериализуются в JSON, nil даёт пустую строку.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
