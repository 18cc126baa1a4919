package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Flowline/internal/domain"
)

// DataBag — выходы узлов в рамках одного run (nodeID → output).
//
// Каждый узел записывает свой выход один раз. До начала run в bag
// можно положить данные активации триггера (Seed); такое значение
// один раз заменяется собственным выходом узла.
type DataBag struct {
	mu      sync.RWMutex
	values  map[string]any
	written map[string]bool
}

// NewDataBag создаёт пустой data bag.
func NewDataBag() *DataBag {
	return &DataBag{
		values:  make(map[string]any),
		written: make(map[string]bool),
	}
}

// Seed кладёт данные активации для узла. Не перезаписывает уже записанный выход.
func (b *DataBag) Seed(nodeID string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.written[nodeID] {
		return
	}
	b.values[nodeID] = value
}

// Set записывает выход узла. Повторная запись возвращает ErrOutputAlreadyWritten.
func (b *DataBag) Set(nodeID string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.written[nodeID] {
		return fmt.Errorf("%w: %s", ErrOutputAlreadyWritten, nodeID)
	}
	b.values[nodeID] = value
	b.written[nodeID] = true
	return nil
}

// Get возвращает значение для узла (выход или данные активации).
func (b *DataBag) Get(nodeID string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[nodeID]
	return v, ok
}

// Written возвращает true, если узел уже записал свой выход.
func (b *DataBag) Written(nodeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.written[nodeID]
}

// Snapshot возвращает копию верхнего уровня bag.
func (b *DataBag) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// LogSink получает каждую запись серверного лога сразу после добавления.
//
// Append вызывается под блокировкой последовательности, поэтому
// реализация не должна блокироваться надолго.
type LogSink interface {
	Append(entry domain.LogEntry)
}

// LogSinkFunc — адаптер функции к LogSink.
type LogSinkFunc func(entry domain.LogEntry)

// Append реализует LogSink.
func (f LogSinkFunc) Append(entry domain.LogEntry) { f(entry) }

// LogSequence — серверный лог run (ServerLogOutput), только добавление.
type LogSequence struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	sinks   []LogSink
	now     func() time.Time
}

// NewLogSequence создаёт пустой лог. Sinks получают копию каждой записи.
func NewLogSequence(sinks ...LogSink) *LogSequence {
	return &LogSequence{
		sinks: sinks,
		now:   time.Now,
	}
}

// Append добавляет запись.
func (l *LogSequence) Append(typ domain.LogType, message string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := domain.LogEntry{
		Timestamp: l.now().UTC(),
		Message:   message,
		Type:      typ,
	}
	l.entries = append(l.entries, entry)
	for _, s := range l.sinks {
		s.Append(entry)
	}
}

// Info добавляет информационную запись.
func (l *LogSequence) Info(format string, args ...any) {
	l.Append(domain.LogTypeInfo, fmt.Sprintf(format, args...))
}

// Error добавляет запись об ошибке.
func (l *LogSequence) Error(format string, args ...any) {
	l.Append(domain.LogTypeError, fmt.Sprintf(format, args...))
}

// Success добавляет запись об успехе.
func (l *LogSequence) Success(format string, args ...any) {
	l.Append(domain.LogTypeSuccess, fmt.Sprintf(format, args...))
}

// Entries возвращает копию всех записей.
func (l *LogSequence) Entries() []domain.LogEntry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len возвращает количество записей.
func (l *LogSequence) Len() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
