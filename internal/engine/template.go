package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SegmentKind — вид сегмента шаблона.
type SegmentKind int

const (
	// SegmentLiteral — обычный текст.
	SegmentLiteral SegmentKind = iota

	// SegmentPlaceholder — плейсхолдер {{ path }}.
	SegmentPlaceholder
)

// Segment — узел AST шаблона.
type Segment struct {
	// Kind — литерал или плейсхолдер.
	Kind SegmentKind

	// Text — для литерала сам текст, для плейсхолдера исходная запись "{{ a.b }}".
	Text string

	// Path — путь плейсхолдера, разбитый по точкам.
	Path []string
}

// Template — разобранная строка: последовательность литералов и плейсхолдеров.
type Template struct {
	Raw      string
	Segments []Segment
}

// ParseTemplate разбирает строку на сегменты.
//
// Плейсхолдер: "{{", пробелы, путь без пробелов и фигурных скобок, пробелы, "}}".
// Всё, что не образует корректный плейсхолдер, остаётся литералом.
// "{{{a}}}" разбирается как "{", {{a}}, "}".
func ParseTemplate(s string) *Template {
	t := &Template{Raw: s}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.Segments = append(t.Segments, Segment{Kind: SegmentLiteral, Text: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx < 0 {
			lit.WriteString(s[i:])
			break
		}
		start := i + idx

		path, end, ok := scanPlaceholder(s, start)
		if !ok {
			// Некорректный открывающий маркер: первая "{" уходит в литерал,
			// поиск продолжается со следующего символа.
			lit.WriteString(s[i : start+1])
			i = start + 1
			continue
		}

		lit.WriteString(s[i:start])
		flush()
		t.Segments = append(t.Segments, Segment{
			Kind: SegmentPlaceholder,
			Text: s[start:end],
			Path: strings.Split(path, "."),
		})
		i = end
	}
	flush()

	return t
}

// scanPlaceholder пытается прочитать плейсхолдер, начинающийся с позиции start.
// Возвращает путь и позицию сразу после "}}".
func scanPlaceholder(s string, start int) (path string, end int, ok bool) {
	j := skipSpace(s, start+2)

	pathStart := j
	for j < len(s) {
		r, size := utf8.DecodeRuneInString(s[j:])
		if r == '{' || r == '}' || unicode.IsSpace(r) {
			break
		}
		j += size
	}
	if j == pathStart {
		return "", 0, false
	}
	path = s[pathStart:j]

	j = skipSpace(s, j)
	if !strings.HasPrefix(s[j:], "}}") {
		return "", 0, false
	}
	return path, j + 2, true
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

// Placeholders возвращает количество плейсхолдеров в шаблоне.
func (t *Template) Placeholders() int {
	n := 0
	for _, seg := range t.Segments {
		if seg.Kind == SegmentPlaceholder {
			n++
		}
	}
	return n
}

// IsSinglePlaceholder возвращает true, если вся строка (без внешних пробелов)
// начинается с "{{", заканчивается на "}}" и содержит ровно один плейсхолдер.
//
// Для таких строк результат подстановки разбирается как JSON,
// чтобы сохранить числа, объекты и булевы значения.
func (t *Template) IsSinglePlaceholder() bool {
	trimmed := strings.TrimSpace(t.Raw)
	return strings.HasPrefix(trimmed, "{{") &&
		strings.HasSuffix(trimmed, "}}") &&
		t.Placeholders() == 1
}
