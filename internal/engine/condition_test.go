package engine

import "testing"

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		condition string
		expected  bool
	}{
		// Булевы литералы
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"false", false},
		{"False", false},
		{"0", false},

		// Разрешающее приведение
		{"anything-else", true},
		{"false ", true},
		{"", false},
		{"   ", false},

		// Сравнения
		{"150 > 100", true},
		{"50 > 100", false},
		{"10 <= 10", true},
		{"true == false", false},
		{"true == true", true},
		{"'abc' === 'abc'", true},
		{"abc != abd", true},
		{"5 == '5'", true},
		{"5 === '5'", false},
		{"b > a", true},
		{"null == null", true},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			if got := EvaluateCondition(tt.condition, "node", NewLogSequence()); got != tt.expected {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tt.condition, got, tt.expected)
			}
		})
	}
}

func TestEvaluateCondition_EmptyLogs(t *testing.T) {
	logs := NewLogSequence()
	EvaluateCondition("", "n1", logs)

	if logs.Len() != 1 {
		t.Errorf("expected one log line for empty condition, got %d", logs.Len())
	}
}
