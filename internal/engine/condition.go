package engine

import (
	"strconv"
	"strings"
)

// Операторы сравнения в порядке поиска: длинные раньше коротких.
var conditionOperators = []string{"===", "!==", "==", "!=", "<=", ">=", "<", ">"}

// EvaluateCondition вычисляет условие узла (обычно уже после подстановки плейсхолдеров).
//
// Правила:
//   - пустая строка → false
//   - "a OP b" (OP из === !== == != <= >= < >) → результат сравнения
//   - "true"/"1" (без учёта регистра) → true, "false"/"0" → false
//   - любая другая непустая строка → true
//
// Последнее правило слишком разрешающее ("false " с пробелом даёт true),
// но на нём держатся сохранённые workflow.
func EvaluateCondition(condition, nodeID string, logs *LogSequence) bool {
	if strings.TrimSpace(condition) == "" {
		logs.Info("[CONDITION EVAL] Node %s: Condition is empty. Evaluating to false.", nodeID)
		return false
	}

	for _, op := range conditionOperators {
		idx := strings.Index(condition, op)
		if idx < 0 {
			continue
		}
		lhs := parseOperand(condition[:idx])
		rhs := parseOperand(condition[idx+len(op):])
		return compare(op, lhs, rhs)
	}

	switch strings.ToLower(condition) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}

	logs.Info("[CONDITION EVAL] Node %s: Non-boolean condition %q treated as true.", nodeID, condition)
	return true
}

// parseOperand разбирает операнд: bool, null, строку в кавычках, число или сырой текст.
func parseOperand(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "undefined":
		return nil
	}
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func compare(op string, lhs, rhs any) bool {
	switch op {
	case "===":
		return lhs == rhs
	case "!==":
		return lhs != rhs
	case "==":
		return looseEqual(lhs, rhs)
	case "!=":
		return !looseEqual(lhs, rhs)
	}

	lf, lok := lhs.(float64)
	rf, rok := rhs.(float64)
	if lok && rok {
		switch op {
		case "<":
			return lf < rf
		case ">":
			return lf > rf
		case "<=":
			return lf <= rf
		case ">=":
			return lf >= rf
		}
	}

	ls, rs := operandString(lhs), operandString(rhs)
	switch op {
	case "<":
		return ls < rs
	case ">":
		return ls > rs
	case "<=":
		return ls <= rs
	case ">=":
		return ls >= rs
	}
	return false
}

// looseEqual сравнивает операнды разных типов по строковому представлению.
func looseEqual(lhs, rhs any) bool {
	if lhs == nil || rhs == nil {
		return lhs == rhs
	}
	if lhs == rhs {
		return true
	}
	return operandString(lhs) == operandString(rhs)
}

func operandString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	default:
		return ""
	}
}
