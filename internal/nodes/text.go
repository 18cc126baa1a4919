package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/shaiso/Flowline/internal/domain"
)

// TextExecutor — строковые утилиты: toUpperCase, toLowerCase,
// concatenateStrings, stringSplit.
//
// Конфигурация:
//
//	toUpperCase / toLowerCase: {"inputString": "..."}
//	concatenateStrings:        {"stringsToConcatenate": ["a", "b"], "separator": "-"}
//	stringSplit:               {"inputString": "a,b", "delimiter": ","}
//
// Выход: {"output_data": "..."}; stringSplit — {"output_data": {"array": [...]}}.
type TextExecutor struct {
	typ domain.NodeType
}

// NewTextExecutor создаёт TextExecutor указанного типа.
func NewTextExecutor(typ domain.NodeType) *TextExecutor {
	return &TextExecutor{typ: typ}
}

// Type возвращает тип узла.
func (e *TextExecutor) Type() domain.NodeType {
	return e.typ
}

// Execute применяет строковую операцию.
func (e *TextExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	switch e.typ {
	case domain.NodeTypeToUpperCase, domain.NodeTypeToLowerCase:
		input, ok := req.Config["inputString"].(string)
		if !ok {
			return nil, invalidConfig(e.typ, "inputString must be a string")
		}
		req.Logf("Converting %d char(s).", len(input))
		if e.typ == domain.NodeTypeToUpperCase {
			return Output{"output_data": strings.ToUpper(input)}, nil
		}
		return Output{"output_data": strings.ToLower(input)}, nil

	case domain.NodeTypeConcatenateStrings:
		items, ok := GetConfigSlice(req.Config, "stringsToConcatenate")
		if !ok {
			return nil, invalidConfig(e.typ, "stringsToConcatenate must be an array of strings")
		}
		parts := make([]string, len(items))
		for i, it := range items {
			if it != nil {
				parts[i] = fmt.Sprint(it)
			}
		}
		req.Logf("Joining %d string(s).", len(parts))
		return Output{"output_data": strings.Join(parts, GetConfigString(req.Config, "separator"))}, nil

	case domain.NodeTypeStringSplit:
		input, ok := req.Config["inputString"].(string)
		if !ok {
			return nil, invalidConfig(e.typ, "inputString must be a string")
		}
		delimiter := GetConfigString(req.Config, "delimiter")
		if delimiter == "" {
			delimiter = ","
		}
		parts := strings.Split(input, delimiter)
		array := make([]any, len(parts))
		for i, p := range parts {
			array[i] = p
		}
		req.Logf("Split into %d part(s).", len(array))
		return Output{"output_data": map[string]any{"array": array}}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrExecutorNotFound, e.typ)
}

const defaultDateFormat = "yyyy-MM-dd HH:mm:ss"

// Форматы входной даты, по порядку.
var dateInputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatDateExecutor — узел форматирования даты.
//
// Конфигурация:
//
//	{"inputDateString": "2025-03-01T10:30:00Z", "outputFormatString": "dd.MM.yyyy"}
//
// Шаблон использует токены date-fns (yyyy, MM, dd, HH, mm, ss, ...),
// текст в одинарных кавычках выводится как есть.
//
// Выход: {"output_data": {"formattedDate": "01.03.2025"}}.
type FormatDateExecutor struct{}

// NewFormatDateExecutor создаёт FormatDateExecutor.
func NewFormatDateExecutor() *FormatDateExecutor {
	return &FormatDateExecutor{}
}

// Type возвращает тип узла.
func (e *FormatDateExecutor) Type() domain.NodeType {
	return domain.NodeTypeFormatDate
}

// Execute форматирует дату.
func (e *FormatDateExecutor) Execute(_ context.Context, req *Request) (Output, error) {
	input := strings.TrimSpace(GetConfigString(req.Config, "inputDateString"))
	if input == "" {
		return nil, invalidConfig(domain.NodeTypeFormatDate, "inputDateString is required")
	}

	t, err := parseDate(input)
	if err != nil {
		return nil, invalidConfig(domain.NodeTypeFormatDate, "invalid input date string %q", input)
	}

	pattern := GetConfigString(req.Config, "outputFormatString")
	if pattern == "" {
		pattern = defaultDateFormat
	}

	formatted := FormatDate(t, pattern)
	req.Logf("Formatted %s as %q.", input, formatted)
	return Output{"output_data": map[string]any{"formattedDate": formatted}}, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateInputLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// dateFnsDirectives — токены date-fns и директивы strftime для них.
// trim — токен без ведущего нуля (d, M, H, ...).
var dateFnsDirectives = map[string]struct {
	directive string
	trim      bool
}{
	"yyyy": {"%Y", false},
	"yy":   {"%y", false},
	"y":    {"%Y", false},
	"MMMM": {"%B", false},
	"MMM":  {"%b", false},
	"MM":   {"%m", false},
	"M":    {"%m", true},
	"dd":   {"%d", false},
	"d":    {"%d", true},
	"EEEE": {"%A", false},
	"EEE":  {"%a", false},
	"EE":   {"%a", false},
	"E":    {"%a", false},
	"HH":   {"%H", false},
	"H":    {"%H", true},
	"hh":   {"%I", false},
	"h":    {"%I", true},
	"mm":   {"%M", false},
	"m":    {"%M", true},
	"ss":   {"%S", false},
	"s":    {"%S", true},
	"a":    {"%p", false},
	"X":    {"%z", false},
	"x":    {"%z", false},
}

// FormatDate форматирует время по шаблону.
//
// Шаблон с "%" — strftime. Иначе — токены date-fns (yyyy, MM, dd, HH, ...),
// текст в одинарных кавычках выводится как есть, '' — одна кавычка.
func FormatDate(t time.Time, pattern string) string {
	if strings.Contains(pattern, "%") {
		return strftime.Format(pattern, t)
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]

		if c == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			if end == 0 {
				b.WriteByte('\'')
			} else {
				b.WriteString(pattern[i+1 : i+1+end])
			}
			i += end + 2
			continue
		}

		if !isASCIILetter(c) {
			b.WriteByte(c)
			i++
			continue
		}

		n := 1
		for i+n < len(pattern) && pattern[i+n] == c {
			n++
		}
		b.WriteString(dateToken(t, pattern[i:i+n]))
		i += n
	}
	return b.String()
}

// dateToken форматирует один токен date-fns.
// Неизвестные токены выводятся как есть.
func dateToken(t time.Time, token string) string {
	if token[0] == 'S' {
		ms := fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
		return ms[:min(len(token), 3)]
	}

	d, ok := dateFnsDirectives[token]
	if !ok {
		return token
	}
	out := strftime.Format(d.directive, t)
	if d.trim && len(out) > 1 {
		out = strings.TrimPrefix(out, "0")
	}
	return out
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
