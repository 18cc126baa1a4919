package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetConfigString извлекает строковое значение из конфига.
// Числа и bool приводятся к строке.
func GetConfigString(config map[string]any, key string) string {
	switch v := config[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// GetConfigInt извлекает числовое значение из конфига.
// Строки с числом тоже принимаются (после подстановки плейсхолдеров).
func GetConfigInt(config map[string]any, key string) int {
	switch n := config[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return i
		}
	}
	return 0
}

// GetConfigFloat извлекает число с плавающей точкой.
func GetConfigFloat(config map[string]any, key string) (float64, bool) {
	switch n := config[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	switch b := config[key].(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
// JSON-строка с объектом тоже принимается (заголовки из текстового поля редактора).
func GetConfigMap(config map[string]any, key string) map[string]any {
	switch m := config[key].(type) {
	case map[string]any:
		return m
	case string:
		var parsed map[string]any
		if strings.TrimSpace(m) != "" && json.Unmarshal([]byte(m), &parsed) == nil {
			return parsed
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	switch m := config[key].(type) {
	case map[string]string:
		return m
	}

	src := GetConfigMap(config, key)
	if src == nil {
		return nil
	}
	result := make(map[string]string, len(src))
	for k, val := range src {
		if s, ok := val.(string); ok {
			result[k] = s
		} else {
			result[k] = fmt.Sprint(val)
		}
	}
	return result
}

// GetConfigSlice извлекает массив из конфига.
// JSON-строка с массивом тоже принимается.
func GetConfigSlice(config map[string]any, key string) ([]any, bool) {
	switch v := config[key].(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case string:
		var parsed []any
		if json.Unmarshal([]byte(v), &parsed) == nil {
			return parsed, true
		}
	}
	return nil, false
}

// GetConfigStrings извлекает список строк: массив или строку через запятую.
func GetConfigStrings(config map[string]any, key string) []string {
	if items, ok := GetConfigSlice(config, key); ok {
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s := strings.TrimSpace(fmt.Sprint(it)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(GetConfigString(config, key), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
