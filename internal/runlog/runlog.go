// Package runlog — живой хвост серверного лога run в Redis.
//
// Пока run выполняется, worker дописывает записи в список
// <prefix><runID>; по завершении ставится ключ <prefix><runID>:done.
// API читает список с заданного смещения, поэтому клиент может
// опрашивать лог инкрементально. Оба ключа живут TTL.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Flowline/internal/domain"
)

const (
	DefaultPrefix = "flowline:runlog:"
	DefaultTTL    = 24 * time.Hour

	sinkBuffer = 256
	flushLimit = 64
)

// store — подмножество команд Redis, которое нужно пакету.
// *redis.Client и *redis.ClusterClient ему удовлетворяют.
type store interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store пишет и читает логи run.
type Store struct {
	rdb    store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option настраивает Store.
type Option func(*Store)

// WithPrefix задаёт префикс ключей.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL задаёт время жизни ключей.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New создаёт Store поверх клиента Redis.
func New(rdb redis.Cmdable, opts ...Option) *Store {
	return newStore(rdb, opts...)
}

func newStore(rdb store, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entriesKey(runID uuid.UUID) string { return s.prefix + runID.String() }
func (s *Store) doneKey(runID uuid.UUID) string    { return s.prefix + runID.String() + ":done" }

// Sink — приёмник записей одного run. Реализует engine.LogSink.
//
// Append не блокируется: записи уходят в буфер и пишутся в Redis
// фоновой горутиной пачками. При переполнении буфера запись
// отбрасывается (полный лог всё равно сохраняется вместе с run).
type Sink struct {
	store *Store
	runID uuid.UUID

	entries chan domain.LogEntry
	flushed chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// Open начинает запись лога run.
func (s *Store) Open(runID uuid.UUID) *Sink {
	sink := &Sink{
		store:   s,
		runID:   runID,
		entries: make(chan domain.LogEntry, sinkBuffer),
		flushed: make(chan struct{}),
	}
	go sink.loop()
	return sink
}

// Append реализует engine.LogSink.
func (k *Sink) Append(entry domain.LogEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return
	}
	select {
	case k.entries <- entry:
	default:
		k.dropped++
	}
}

// Close дописывает буфер и помечает лог завершённым.
func (k *Sink) Close(ctx context.Context) error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.entries)
	dropped := k.dropped
	k.mu.Unlock()

	select {
	case <-k.flushed:
	case <-ctx.Done():
		return ctx.Err()
	}

	if dropped > 0 {
		k.store.logger.Warn("run log entries dropped from live tail",
			"run_id", k.runID, "dropped", dropped)
	}

	if err := k.store.rdb.Set(ctx, k.store.doneKey(k.runID), "1", k.store.ttl).Err(); err != nil {
		return fmt.Errorf("mark run log done: %w", err)
	}
	return nil
}

func (k *Sink) loop() {
	defer close(k.flushed)

	batch := make([]any, 0, flushLimit)
	for entry := range k.entries {
		batch = append(batch[:0], encode(entry))
	drain:
		for len(batch) < flushLimit {
			select {
			case e, ok := <-k.entries:
				if !ok {
					break drain
				}
				batch = append(batch, encode(e))
			default:
				break drain
			}
		}
		k.flush(batch)
	}
}

func (k *Sink) flush(batch []any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := k.store.entriesKey(k.runID)
	if err := k.store.rdb.RPush(ctx, key, batch...).Err(); err != nil {
		k.store.logger.Warn("push run log entries", "run_id", k.runID, "error", err)
		return
	}
	if err := k.store.rdb.Expire(ctx, key, k.store.ttl).Err(); err != nil {
		k.store.logger.Warn("expire run log", "run_id", k.runID, "error", err)
	}
}

func encode(entry domain.LogEntry) string {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"message":%q,"type":"error"}`, err.Error())
	}
	return string(b)
}

// Tail — часть лога начиная со смещения.
type Tail struct {
	Entries []domain.LogEntry `json:"entries"`

	// Next — смещение для следующего запроса.
	Next int64 `json:"next"`

	// Done — run завершён, новых записей не будет.
	Done bool `json:"done"`
}

// Read возвращает записи лога начиная с from.
// Для неизвестного run возвращает пустой Tail без ошибки.
func (s *Store) Read(ctx context.Context, runID uuid.UUID, from int64) (*Tail, error) {
	if from < 0 {
		from = 0
	}

	// done читается до списка: если run завершился между запросами,
	// клиент всё равно получит последние записи.
	n, err := s.rdb.Exists(ctx, s.doneKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check run log done: %w", err)
	}

	raw, err := s.rdb.LRange(ctx, s.entriesKey(runID), from, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}

	tail := &Tail{
		Entries: make([]domain.LogEntry, 0, len(raw)),
		Next:    from + int64(len(raw)),
		Done:    n > 0,
	}
	for _, r := range raw {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode run log entry: %w", err)
		}
		tail.Entries = append(tail.Entries, e)
	}
	return tail, nil
}
