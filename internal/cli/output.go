package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. format: "table" (по умолчанию) или "json".
func NewOutput(format string) (*Output, error) {
	return NewOutputTo(format, os.Stdout, os.Stderr)
}

// NewOutputTo — NewOutput с явными потоками.
func NewOutputTo(format string, w, errW io.Writer) (*Output, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return &Output{w: w, errW: errW}, nil
	case "json":
		return &Output{jsonMode: true, w: w, errW: errW}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table or json)", format)
	}
}

// JSONMode сообщает, выводятся ли данные в JSON.
func (o *Output) JSONMode() bool { return o.jsonMode }

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// LogEntry печатает запись серверного лога run в stderr.
func (o *Output) LogEntry(e domain.LogEntry) {
	fmt.Fprintf(o.errW, "%s %-7s %s\n", e.Timestamp.Format(time.TimeOnly), e.Type, e.Message)
}

// Result печатает итог run: таблицу узлов или весь результат в JSON.
func (o *Output) Result(r *domain.ExecutionResult) {
	if o.jsonMode {
		o.JSON(r)
		return
	}

	fmt.Fprintf(o.w, "Run %s: %s", r.ID, r.Status)
	if d := r.Duration(); d > 0 {
		fmt.Fprintf(o.w, " in %s", d.Round(time.Millisecond))
	}
	fmt.Fprintln(o.w)
	if r.Error != "" {
		fmt.Fprintf(o.w, "Error: %s\n", r.Error)
	}
	if len(r.Nodes) == 0 {
		return
	}

	fmt.Fprintln(o.w)
	o.Table([]string{"NODE", "TYPE", "STATUS", "ATTEMPTS", "DETAILS"}, nodeRows(r))
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func nodeRows(r *domain.ExecutionResult) [][]string {
	ids := make([]string, 0, len(r.Nodes))
	for id := range r.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		n := r.Nodes[id]
		details := n.Error
		if details == "" {
			details = n.Reason
		}
		rows = append(rows, []string{
			id, string(n.Type), string(n.Status), fmt.Sprint(len(n.Attempts)), truncate(details, 60),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
