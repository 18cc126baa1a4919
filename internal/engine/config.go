package engine

import "context"

// InputKey — зарезервированный ключ разрешённой конфигурации
// и пространство имён плейсхолдеров для inputMapping.
const InputKey = "input"

// ResolveNodeConfig разрешает конфигурацию узла в две фазы.
//
//  1. inputMapping разрешается только по data bag → resolvedInputs
//  2. baseConfig разрешается с resolvedInputs: как {{input.x}} и как {{x}}
//
// Верхнеуровневые имена входов перекрывают узлы с тем же ID,
// пространство "input" перекрывает вход с именем "input".
// Результат — новая карта с ключом "input" = resolvedInputs.
// Исходные карты не изменяются.
func (r *Resolver) ResolveNodeConfig(ctx context.Context, baseConfig, inputMapping map[string]any, bag *DataBag, logs *LogSequence, userID string) map[string]any {
	inputs := r.resolveMap(ctx, inputMapping, bag, logs, userID, nil)

	contexts := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		contexts[k] = v
	}
	contexts[InputKey] = inputs

	resolved := r.resolveMap(ctx, baseConfig, bag, logs, userID, contexts)
	resolved[InputKey] = inputs

	return resolved
}

// ResolveTree рекурсивно разрешает значение: карты по ключам, массивы поэлементно.
func (r *Resolver) ResolveTree(ctx context.Context, value any, bag *DataBag, logs *LogSequence, userID string, contexts map[string]any) any {
	switch v := value.(type) {
	case map[string]any:
		return r.resolveMap(ctx, v, bag, logs, userID, contexts)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.ResolveTree(ctx, item, bag, logs, userID, contexts)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = r.ResolveValue(ctx, item, bag, logs, userID, contexts)
		}
		return out
	default:
		return r.ResolveValue(ctx, value, bag, logs, userID, contexts)
	}
}

func (r *Resolver) resolveMap(ctx context.Context, m map[string]any, bag *DataBag, logs *LogSequence, userID string, contexts map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = r.ResolveTree(ctx, v, bag, logs, userID, contexts)
	}
	return out
}
